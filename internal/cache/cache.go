// Package cache keeps the latest collected reading in memory for the API.
package cache

import (
	"sync"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// Cache is a thread-safe in-memory store for the most recent reading.
type Cache struct {
	mu sync.RWMutex

	reading    *model.Reading
	changes    model.ChangeSet
	lastPoll   time.Time
	lastError  string
	samples    int64
	dropped    int64
	failures   int64
	startedAt  time.Time
	transition *model.Transition
}

// CacheSnapshot is a read-only copy of the cache state.
type CacheSnapshot struct {
	Reading        *model.Reading    `json:"reading,omitempty"`
	LastChangeSet  model.ChangeSet   `json:"last_change_set"`
	LastTransition *model.Transition `json:"last_transition,omitempty"`
	LastPoll       time.Time         `json:"last_poll"`
	LastError      string            `json:"last_error,omitempty"`
	Samples        int64             `json:"samples"`
	Dropped        int64             `json:"dropped"`
	Failures       int64             `json:"failures"`
	StartedAt      time.Time         `json:"started_at"`
}

// New returns an initialized Cache.
func New() *Cache {
	return &Cache{startedAt: time.Now()}
}

// Update records a successfully ingested reading and what it changed.
func (c *Cache) Update(r model.Reading, cs model.ChangeSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := r
	c.reading = &cp
	c.changes = cs
	c.lastPoll = time.Now()
	c.lastError = ""
	c.samples++
	if cs.Dropped {
		c.dropped++
	}
	if cs.Transition != nil {
		t := *cs.Transition
		c.transition = &t
	}
}

// RecordError records a failed collection cycle.
func (c *Cache) RecordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastError = err.Error()
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() CacheSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := CacheSnapshot{
		LastChangeSet: c.changes,
		LastPoll:      c.lastPoll,
		LastError:     c.lastError,
		Samples:       c.samples,
		Dropped:       c.dropped,
		Failures:      c.failures,
		StartedAt:     c.startedAt,
	}
	if c.reading != nil {
		r := *c.reading
		snap.Reading = &r
	}
	if c.transition != nil {
		t := *c.transition
		snap.LastTransition = &t
	}
	return snap
}

// Stale reports whether no reading has been ingested within maxAge.
func (c *Cache) Stale(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastPoll.IsZero() || time.Since(c.lastPoll) > maxAge
}
