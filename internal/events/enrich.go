package events

import (
	"context"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
)

// DeviceInfoTTL is how long a looked-up device identity is cached
// before being re-fetched (§4.5).
const DeviceInfoTTL = 5 * time.Minute

// DeviceInfoLookup fetches current identity for a device; implemented
// by a collab.DeviceClient-backed adapter outside this package.
type DeviceInfoLookup func(ctx context.Context, deviceID string) (models.DeviceInfo, error)

type cachedDeviceInfo struct {
	info      models.DeviceInfo
	expiresAt time.Time
}

// Enricher attaches cached device identity to events (§4.5's "Enrich"
// step).
type Enricher struct {
	mu     sync.Mutex
	cache  map[string]cachedDeviceInfo
	lookup DeviceInfoLookup
	clock  func() time.Time
}

// NewEnricher constructs an Enricher backed by lookup.
func NewEnricher(lookup DeviceInfoLookup, clock func() time.Time) *Enricher {
	if clock == nil {
		clock = time.Now
	}
	return &Enricher{
		cache:  make(map[string]cachedDeviceInfo),
		lookup: lookup,
		clock:  clock,
	}
}

// Enrich attaches DeviceInfo to e in place, using the cache when fresh
// and falling back to lookup otherwise. A lookup failure leaves e
// unenriched rather than failing the whole preprocessing path.
func (en *Enricher) Enrich(ctx context.Context, e *models.UnifiedEvent, deviceID string) {
	if deviceID == "" {
		return
	}

	en.mu.Lock()
	cached, ok := en.cache[deviceID]
	now := en.clock()
	en.mu.Unlock()

	if ok && now.Before(cached.expiresAt) {
		e.DeviceInfo = &cached.info
		return
	}

	if en.lookup == nil {
		return
	}
	info, err := en.lookup(ctx, deviceID)
	if err != nil {
		if ok {
			e.DeviceInfo = &cached.info
		}
		return
	}

	en.mu.Lock()
	en.cache[deviceID] = cachedDeviceInfo{info: info, expiresAt: now.Add(DeviceInfoTTL)}
	en.mu.Unlock()

	e.DeviceInfo = &info
}
