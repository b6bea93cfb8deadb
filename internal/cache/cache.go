// Package cache provides an in-memory TTL cache for backend lookups made by
// chat commands.
package cache

import (
	"context"
	"sync"
	"time"
)

// TTLs for cached backend lookups.
const (
	TTLClan = 5 * time.Minute
	TTLWar  = 1 * time.Minute
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	enabled bool
	now     func() time.Time
	hits    int
	misses  int
}

// New creates a new cache. Pass enabled=false to create a no-op cache.
func New[V any](enabled bool) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		enabled: enabled,
		now:     time.Now,
	}
}

// Get retrieves a cached value.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[key]
	if !exists || !c.now().Before(e.expiresAt) {
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value with a TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Errors are not cached.
func (c *Cache[V]) GetOrLoad(key string, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := 0
	now := c.now()
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			active++
		}
	}
	return map[string]interface{}{
		"enabled":      c.enabled,
		"total_keys":   len(c.entries),
		"active_keys":  active,
		"expired_keys": len(c.entries) - active,
		"hits":         c.hits,
		"misses":       c.misses,
	}
}

// EvictLoop removes expired entries every interval until ctx is cancelled.
func (c *Cache[V]) EvictLoop(ctx context.Context, interval time.Duration) {
	if !c.enabled {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evict()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cache[V]) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
