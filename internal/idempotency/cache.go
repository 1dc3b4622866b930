// Package idempotency provides a bounded TTL cache used to replay workflow
// action results instead of re-executing external deliveries.
package idempotency

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// Cache stores values by idempotency key. Entries expire after a fixed TTL
// and the cache never holds more than maxEntries values; when full, the
// oldest entry by insertion order is evicted (strict FIFO, not LRU).
type Cache[V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	order   []string
}

// New constructs a cache with the given TTL and entry cap.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return NewWithClock[V](ttl, maxEntries, time.Now)
}

// NewWithClock constructs a cache with an injected clock for tests.
func NewWithClock[V any](ttl time.Duration, maxEntries int, now func() time.Time) *Cache[V] {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]entry[V]),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting the oldest entry when full.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry[V]{value: value, createdAt: c.now()}
}

// Len reports the number of live entries after purging expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	return len(c.entries)
}

func (c *Cache[V]) purgeLocked() {
	if len(c.entries) == 0 {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	kept := c.order[:0]
	for _, key := range c.order {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		if e.createdAt.Before(cutoff) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}
