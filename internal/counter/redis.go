package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpire sets the TTL only on the first hit of a window, so the window is fixed, not sliding.
var incrWithExpire = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("TTL", KEYS[1])}
`)

// Redis is a Store backed by Redis.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis returns new Redis store.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// IncrWithExpire runs the increment script in a single round trip (EVALSHA, falling back to EVAL).
func (r *Redis) IncrWithExpire(ctx context.Context, key string, window time.Duration) (Result, error) {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	vals, err := incrWithExpire.Run(ctx, r.client, []string{key}, seconds).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("can't increment counter %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("unexpected increment script reply for %s: %v", key, vals)
	}

	return Result{Count: vals[0], TTL: ttlFromSeconds(vals[1])}, nil
}

// Get returns the current counter value, 0 when the key doesn't exist.
func (r *Redis) Get(ctx context.Context, key string) (int64, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("can't get counter %s: %w", key, err)
	}
	return v, nil
}

// TTL returns the remaining lifetime of key, 0 when it has none or doesn't exist.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("can't get ttl of %s: %w", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Expire sets the TTL of key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("can't expire %s: %w", key, err)
	}
	return nil
}

// ttlFromSeconds maps Redis TTL replies (-1 no expiry, -2 missing key) to zero.
func ttlFromSeconds(s int64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
