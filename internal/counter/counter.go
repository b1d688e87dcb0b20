// Package counter wraps the external atomic key-value service used for rate limit counters.
package counter

import (
	"context"
	"time"
)

// Result is the outcome of an atomic increment.
type Result struct {
	// Count is the post-increment value.
	Count int64
	// TTL is the remaining lifetime of the key. Zero means the store reported no TTL.
	TTL time.Duration
}

// Store is an atomic counter store.
type Store interface {
	// IncrWithExpire increments key and, only when the new value is 1, sets its TTL to window.
	// Both happen in one server-side step, then the remaining TTL is read back.
	IncrWithExpire(ctx context.Context, key string, window time.Duration) (Result, error)
	Get(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
