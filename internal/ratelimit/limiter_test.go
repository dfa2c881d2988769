package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/config"
)

func setupLimiter(t *testing.T, maxEvents int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	l := NewLimiter(redisClient, &config.RateLimitConfig{
		Window:    time.Minute,
		MaxEvents: maxEvents,
		Retention: time.Hour,
	}, zap.NewNop())

	base := time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	return l, mr
}

func TestAllow_UnderLimit(t *testing.T) {
	l, _ := setupLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "user-1", "203.0.113.10")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, "user-1", "203.0.113.10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := setupLimiter(t, 1)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "user-1", "203.0.113.10")
	require.NoError(t, err)
	require.True(t, ok)

	// Same user from a different origin has its own window.
	ok, err = l.Allow(ctx, "user-1", "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, ok)

	// Different user from the same origin too.
	ok, err = l.Allow(ctx, "user-2", "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_WindowSlides(t *testing.T) {
	l, _ := setupLimiter(t, 2)
	ctx := context.Background()

	base := time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	require.NoError(t, exhaust(ctx, l, 2))
	ok, err := l.Allow(ctx, "user-1", "203.0.113.10")
	require.NoError(t, err)
	require.False(t, ok)

	// Ninety seconds later the earlier events fall out of the window.
	l.now = func() time.Time { return base.Add(90 * time.Second) }
	ok, err = l.Allow(ctx, "user-1", "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func exhaust(ctx context.Context, l *Limiter, n int) error {
	for i := 0; i < n; i++ {
		if _, err := l.Allow(ctx, "user-1", "203.0.113.10"); err != nil {
			return err
		}
	}
	return nil
}

func TestGC_TrimsStaleEntries(t *testing.T) {
	l, _ := setupLimiter(t, 100)
	ctx := context.Background()

	base := time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	require.NoError(t, exhaust(ctx, l, 3))

	// Two hours later everything recorded above is past retention.
	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	removed, err := l.GC(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	removed, err = l.GC(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
