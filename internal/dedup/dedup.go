// Package dedup implements the fingerprint deduplication cache:
// an in-memory map with lazy TTL eviction, backed by the
// persistence layer for durability across restarts.
package dedup

import (
	"context"
	"sync"
	"time"

	"arbitrage/internal/persistence"
	"arbitrage/pkg/utils"
)

// Cache maps a signal fingerprint to its first-seen time. Entries older
// than Window are evicted lazily, on lookup, rather than by a background
// sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	window  time.Duration

	store *persistence.Store
	log   *utils.Logger
}

// New builds a Cache with the given dedup window (default 60s).
// store may be nil, in which case durability across restarts is skipped.
func New(window time.Duration, store *persistence.Store, log *utils.Logger) *Cache {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Cache{
		entries: make(map[string]time.Time),
		window:  window,
		store:   store,
		log:     log,
	}
}

// Seen reports whether fingerprint has already been recorded within the
// dedup window, checking the in-memory map first and falling back to the
// persistence layer (covering the case where this process just
// restarted and lost its in-memory state).
func (c *Cache) Seen(ctx context.Context, fingerprint string) bool {
	now := time.Now()

	c.mu.Lock()
	c.evictLocked(now)
	firstSeen, ok := c.entries[fingerprint]
	c.mu.Unlock()

	if ok && now.Sub(firstSeen) <= c.window {
		return true
	}

	if c.store == nil {
		return false
	}
	dup, err := c.store.CheckDuplicateSignal(ctx, fingerprint)
	if err != nil {
		if c.log != nil {
			c.log.Error("dedup durability check failed", utils.Err(err))
		}
		return false
	}
	return dup
}

// Record marks fingerprint as seen now, both in-memory and (if a store
// is configured) durably.
func (c *Cache) Record(ctx context.Context, fingerprint, instrument string) {
	now := time.Now()

	c.mu.Lock()
	c.entries[fingerprint] = now
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.LogSignal(ctx, fingerprint, instrument, now); err != nil && c.log != nil {
		c.log.Error("dedup durability write failed", utils.Err(err))
	}
}

// evictLocked drops entries whose first-seen time has aged out of the
// window. Caller must hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for fp, t := range c.entries {
		if now.Sub(t) > c.window {
			delete(c.entries, fp)
		}
	}
}

// Len reports the current in-memory entry count, mainly for /webhook/stats.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
