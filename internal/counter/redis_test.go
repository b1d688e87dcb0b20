package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), srv
}

func TestUnitRedisIncrWithExpireSetsTTLOnFirstHitOnly(t *testing.T) {
	store, srv := newTestRedis(t)
	ctx := context.Background()

	first, err := store.IncrWithExpire(ctx, "rl:test:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Count)
	assert.Equal(t, time.Minute, first.TTL)

	srv.FastForward(20 * time.Second)

	second, err := store.IncrWithExpire(ctx, "rl:test:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Count)
	assert.Equal(t, 40*time.Second, second.TTL, "ttl must not be refreshed by later hits")

	got, err := store.Get(ctx, "rl:test:a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestUnitRedisWindowResetsAfterExpiry(t *testing.T) {
	store, srv := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.IncrWithExpire(ctx, "rl:test:b", 10*time.Second)
		require.NoError(t, err)
	}

	srv.FastForward(11 * time.Second)

	res, err := store.IncrWithExpire(ctx, "rl:test:b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, 10*time.Second, res.TTL)
}

func TestUnitRedisGetTTLExpire(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	v, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, v)

	ttl, err := store.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, err = store.IncrWithExpire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, "k", 5*time.Minute))

	ttl, err = store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)
}

func TestUnitRedisUnreachable(t *testing.T) {
	store, srv := newTestRedis(t)
	srv.Close()

	_, err := store.IncrWithExpire(context.Background(), "k", time.Minute)
	require.Error(t, err)
}
