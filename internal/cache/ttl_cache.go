// Package cache provides a small in-process TTL cache used by provider
// clients for read-mostly lookups (token icon URLs, short-lived prices).
// Each provider client owns its own instance; there is no process-wide
// singleton.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a concurrency-safe key/value cache with per-entry expiry. Lookups
// of expired entries behave as misses and evict lazily.
type TTL[V any] struct {
	entries *xsync.Map[string, entry[V]]
	ttl     time.Duration
	now     func() time.Time
}

// NewTTL creates a cache whose entries expire ttl after Set.
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		entries: xsync.NewMap[string, entry[V]](),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key and whether it is present and fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Delete(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.entries.Store(key, entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Len returns the number of stored entries, including any not yet evicted
// expired ones.
func (c *TTL[V]) Len() int {
	return c.entries.Size()
}
