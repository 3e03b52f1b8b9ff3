// Package cache holds detection results, reporter history snapshots and
// the windowed counters behind the velocity signals.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// New creates the cache named by cfg.Type. "redis" with two-phase enabled
// puts a local cache in front of Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(cfg.LocalTTL), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// GetJSON decodes the value at key into a new T. A miss, a backend error
// or an undecodable value all report ok=false; corrupt entries are
// removed.
func GetJSON[T any](ctx context.Context, c domain.Cache, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, false
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("discarding corrupt cache entry", "key", key, "error", err)
		_ = c.Delete(ctx, key)
		return nil, false
	}
	return v, true
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, c domain.Cache, key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// TwoPhaseCache reads the local cache first and falls back to Redis.
// Counters always go to Redis so every node sees the same velocity.
// Deletes are broadcast so other nodes drop their local copy.
type TwoPhaseCache struct {
	local  *MemoryCache
	remote *RedisCache
	l1TTL  time.Duration

	stop context.CancelFunc
	done sync.WaitGroup
}

// NewTwoPhaseCache connects to Redis and starts listening for
// invalidations from other nodes.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	c := newTwoPhase(NewMemoryCache(cfg.LocalTTL), remote, cfg.LocalTTL)
	c.listen()
	return c, nil
}

func newTwoPhase(local *MemoryCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 30 * time.Second
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
		stop:   func() {},
	}
}

func (c *TwoPhaseCache) listen() {
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	sub := c.remote.subscribeInvalidations(ctx)

	c.done.Add(1)
	go func() {
		defer c.done.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = c.local.Delete(ctx, msg.Payload)
			}
		}
	}()
}

// Get reads the local cache, then Redis, copying Redis hits locally.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := c.local.Get(ctx, key); val != nil {
		return val, nil
	}
	val, err := c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes Redis first so a failed write never leaves a local-only value.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	return c.local.Set(ctx, key, value, l1TTL)
}

// Delete removes key everywhere and tells other nodes to do the same.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.publishInvalidation(ctx, key)
}

func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, key, window)
}

func (c *TwoPhaseCache) GetCounter(ctx context.Context, key string) (int64, error) {
	return c.remote.GetCounter(ctx, key)
}

// Ping checks Redis; the local cache cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close stops the invalidation listener and closes Redis.
func (c *TwoPhaseCache) Close() error {
	c.stop()
	c.done.Wait()
	_ = c.local.Close()
	return c.remote.Close()
}

// Len returns the number of local entries.
func (c *TwoPhaseCache) Len() int {
	return c.local.Len()
}
