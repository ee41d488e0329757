package events

import (
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
	"github.com/google/uuid"
)

// flapWindow and flapMinChanges implement §4.5's flap detection: "per
// interface state-change list, 30s window; on >= 2 changes within
// window, emit composite interface-flapping and clear."
const (
	flapWindow     = 30 * time.Second
	flapMinChanges = 2
)

type stateChange struct {
	id     string
	at     time.Time
	status models.InterfaceStatus
}

// FlapDetector tracks per-interface link state transitions and emits a
// composite event once an interface changes state too often within the
// window.
type FlapDetector struct {
	mu      sync.Mutex
	changes map[string][]stateChange
	last    map[string]models.InterfaceStatus
	clock   func() time.Time
}

// NewFlapDetector constructs a FlapDetector.
func NewFlapDetector(clock func() time.Time) *FlapDetector {
	if clock == nil {
		clock = time.Now
	}
	return &FlapDetector{
		changes: make(map[string][]stateChange),
		last:    make(map[string]models.InterfaceStatus),
		clock:   clock,
	}
}

// Observe records an interface's current status and returns a composite
// "interface-flapping" event if the window's change count just reached
// the threshold.
func (f *FlapDetector) Observe(ifaceName string, status models.InterfaceStatus, deviceInfo *models.DeviceInfo) (models.CompositeEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock()
	prev, known := f.last[ifaceName]
	f.last[ifaceName] = status

	if !known || prev == status {
		return models.CompositeEvent{}, false
	}

	cutoff := now.Add(-flapWindow)
	buf := f.changes[ifaceName]
	filtered := buf[:0]
	for _, c := range buf {
		if c.at.After(cutoff) {
			filtered = append(filtered, c)
		}
	}
	filtered = append(filtered, stateChange{id: uuid.NewString(), at: now, status: status})
	f.changes[ifaceName] = filtered

	if len(filtered) < flapMinChanges {
		return models.CompositeEvent{}, false
	}

	f.changes[ifaceName] = nil
	first, last := filtered[0].at, filtered[len(filtered)-1].at
	ids := make([]string, len(filtered))
	for i, c := range filtered {
		ids[i] = c.id
	}
	return models.CompositeEvent{
		UnifiedEvent: models.UnifiedEvent{
			ID:         uuid.NewString(),
			Source:     models.SourceMetrics,
			Timestamp:  models.FromTime(last),
			Severity:   models.SeverityWarning,
			Category:   "interface",
			Message:    "interface-flapping: " + ifaceName,
			DeviceInfo: deviceInfo,
		},
		IsComposite:   true,
		ChildEventIDs: ids,
		Aggregation: models.Aggregation{
			Count:     len(filtered),
			FirstSeen: models.FromTime(first),
			LastSeen:  models.FromTime(last),
			Pattern:   "interface-flapping",
		},
	}, true
}
