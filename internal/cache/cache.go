// Package cache provides a small TTL map used for URL summaries and image
// descriptions.
//
// Expiry is lazy: Get treats stale entries as misses but leaves them in
// place; PurgeExpired removes them in a batch, which the context assembler
// runs after every full build. There is no size-based eviction.
//
// A Cache is not safe for unsynchronized concurrent mutation. Each
// instance is owned by a single component which serializes access (the
// assembler holds its own mutex across builds).
package cache

import "time"

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache maps keys to values with a fixed per-entry lifetime.
type Cache[K comparable, V any] struct {
	ttl     time.Duration
	entries map[K]entry[V]
}

// New creates an empty cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the value stored under key. An entry whose age has reached
// the TTL behaves as a miss; it is not deleted here.
func (c *Cache[K, V]) Get(key K, now time.Time) (V, bool) {
	e, ok := c.entries[key]
	if !ok || now.Sub(e.insertedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with an insertion time of now, replacing any
// previous entry.
func (c *Cache[K, V]) Put(key K, value V, now time.Time) {
	c.entries[key] = entry[V]{value: value, insertedAt: now}
}

// PurgeExpired deletes every entry whose age has reached the TTL and
// reports how many were removed.
func (c *Cache[K, V]) PurgeExpired(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}
