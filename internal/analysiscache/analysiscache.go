// Package analysiscache implements the TTL+LRU map from alert
// fingerprint to a reusable root-cause analysis (§2 share table),
// avoiding redundant pattern-matching and AI calls for a repeat
// occurrence of the same condition.
package analysiscache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aiops/fleet-intel/internal/models"
)

// DefaultTTL is how long a cached analysis stays reusable.
const DefaultTTL = 10 * time.Minute

// DefaultMaxEntries bounds the cache's memory footprint.
const DefaultMaxEntries = 1000

// Stats reports cache activity.
type Stats struct {
	Size   int
	Hits   int
	Misses int
}

// Cache is a TTL+LRU map from fingerprint to RootCauseAnalysis.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.LRU[string, models.RootCauseAnalysis]
	hits   int
	misses int
}

// New creates an analysis cache with the given capacity and TTL; zero
// values fall back to DefaultMaxEntries/DefaultTTL.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: lru.NewLRU[string, models.RootCauseAnalysis](maxEntries, nil, ttl)}
}

// Get returns the cached analysis for fingerprint, if present.
func (c *Cache) Get(fingerprint string) (models.RootCauseAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(fingerprint)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put stores an analysis for later reuse.
func (c *Cache) Put(fingerprint string, analysis models.RootCauseAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(fingerprint, analysis)
}

// Stats reports current size and cumulative hit/miss counts.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}
