package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process TTL cache backed by go-cache.
// Used as the single-node cache and as L1 in two-phase caching.
type MemoryCache struct {
	items *gocache.Cache

	// counterMu makes the add-or-increment sequence atomic.
	counterMu sync.Mutex
}

// NewMemoryCache creates a cache whose entries default to ttl and are
// swept every 2*ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{items: gocache.New(ttl, 2*ttl)}
}

// Get retrieves a value from cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("cache key %q holds a counter, not bytes", key)
	}
	return b, nil
}

// Set stores a value in cache with TTL. A non-positive TTL never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, value, ttl)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// IncrementCounter atomically increments a counter. The first increment
// starts a window that expires after window.
func (c *MemoryCache) IncrementCounter(_ context.Context, key string, window time.Duration) (int64, error) {
	counterKey := "counter:" + key

	c.counterMu.Lock()
	defer c.counterMu.Unlock()

	if err := c.items.Add(counterKey, int64(1), window); err == nil {
		return 1, nil
	}
	return c.items.IncrementInt64(counterKey, 1)
}

// GetCounter returns the current value of a counter.
func (c *MemoryCache) GetCounter(_ context.Context, key string) (int64, error) {
	v, ok := c.items.Get("counter:" + key)
	if !ok {
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("cache key %q is not a counter", key)
	}
	return n, nil
}

// Ping checks cache health.
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}

// Len returns the number of live entries, counters included.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
