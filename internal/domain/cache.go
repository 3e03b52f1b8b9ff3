package domain

import (
	"context"
	"time"
)

// Cache stores detection results, reporter snapshots and velocity
// counters. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// IncrementCounter returns the new count. The counter expires one
	// window after its first increment.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCounter returns 0 for an absent or expired counter.
	GetCounter(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type     string        `mapstructure:"type" json:"type"`
	LocalTTL time.Duration `mapstructure:"local_ttl" json:"localTtl"`

	RedisAddr     string `mapstructure:"redis_addr" json:"redisAddr"`
	RedisPassword string `mapstructure:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db" json:"redisDb"`

	// EnableTwoPhase keeps a local copy in front of Redis.
	EnableTwoPhase bool `mapstructure:"enable_two_phase" json:"enableTwoPhase"`
}
