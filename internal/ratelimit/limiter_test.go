package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l, err := NewRedisLimiter(rdb, "test", 2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "alice|1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "alice|1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok, "third attempt in window must be rejected")

	ok, err = l.Allow(ctx, "bob|1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "alice|1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "window reset after ttl")
}

func TestRedisLimiter_Validation(t *testing.T) {
	_, rdb := newTestRedis(t)
	_, err := NewRedisLimiter(nil, "", 1, time.Second)
	assert.Error(t, err)
	_, err = NewRedisLimiter(rdb, "", 0, time.Second)
	assert.Error(t, err)
	_, err = NewRedisLimiter(rdb, "", 1, 0)
	assert.Error(t, err)

	l, err := NewRedisLimiter(rdb, "", 1, time.Second)
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "")
	assert.Error(t, err)
}

func TestNoopAllows(t *testing.T) {
	ok, err := Noop{}.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
