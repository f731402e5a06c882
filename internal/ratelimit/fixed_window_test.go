package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limit int) (*FixedWindow, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l, err := NewFixedWindow(client, "test", limit, time.Minute)
	require.NoError(t, err)

	// pin the window so the test does not straddle a boundary
	at := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return at }
	return l, mr
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newLimiter(t, 3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "user:1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := l.Allow(context.Background(), "user:1")
	require.NoError(t, err)
	require.False(t, ok)

	// other keys have their own quota
	ok, err = l.Allow(context.Background(), "user:2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllowNextWindow(t *testing.T) {
	l, _ := newLimiter(t, 1)

	ok, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)

	next := l.now().Add(time.Minute)
	l.now = func() time.Time { return next }
	ok, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllowSetsExpiry(t *testing.T) {
	l, mr := newLimiter(t, 5)

	_, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestAllowRedisDown(t *testing.T) {
	l, mr := newLimiter(t, 5)
	mr.Close()

	ok, err := l.Allow(context.Background(), "k")
	require.Error(t, err)
	require.False(t, ok)
}

func TestNewFixedWindowValidation(t *testing.T) {
	_, err := NewFixedWindow(nil, "", 1, time.Second)
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = NewFixedWindow(client, "", 0, time.Second)
	require.Error(t, err)
	_, err = NewFixedWindow(client, "", 1, 0)
	require.Error(t, err)

	l, err := NewFixedWindow(client, "  ", 1, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ratelimit", l.prefix)
}
