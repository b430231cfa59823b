package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLimiterSlidingWindow(t *testing.T) {
	client, _ := newClient(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := Limiter{Client: client, Prefix: "test:", Now: func() time.Time { return now }}
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "key", window, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		require.Equal(t, 1-i, d.Remaining)
		now = now.Add(500 * time.Millisecond)
	}

	d, err := l.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 2, 0, time.UTC), d.Reset.UTC())

	// the first event leaves the window, the second is still inside it
	now = time.Date(2025, 3, 1, 10, 0, 2, 100_000_000, time.UTC)
	d, err = l.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Zero(t, d.Remaining)

	d, err = l.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestLimiterRejectionsDoNotExtendWindow(t *testing.T) {
	client, _ := newClient(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := Limiter{Client: client, Now: func() time.Time { return now }}
	ctx := context.Background()

	d, err := l.Allow(ctx, "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		d, err = l.Allow(ctx, "k", time.Second, 1)
		require.NoError(t, err)
		require.False(t, d.Allowed)
	}
	now = time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	d, err = l.Allow(ctx, "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterWithoutClientAllows(t *testing.T) {
	d, err := Limiter{}.Allow(context.Background(), "key", time.Second, 3)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 3, d.Remaining)
}
