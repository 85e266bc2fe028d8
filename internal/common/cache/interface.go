package cache

import (
	"context"
	"time"
)

// Cache is the key-value subset the judge services rely on.
type Cache interface {
	BasicOps
	CounterOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key, or "" when the key is absent
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists returns how many of the keys exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of a key
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// CounterOps defines integer counters used for rate limiting.
type CounterOps interface {
	Incr(ctx context.Context, key string) (int64, error)

	// IncrWithTTL increments key and sets its TTL when the key was just created.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
