package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0idhrt/radar/internal/config"
)

func TestAcquireUpToLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Acquire(ctx, false), "grant %d should be admitted", i)
	}
	assert.False(t, limiter.Acquire(ctx, false), "grant beyond the limit must be denied")
}

func TestAcquireWaitSucceedsAfterWindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, 150*time.Millisecond)
	ctx := context.Background()

	require.True(t, limiter.Acquire(ctx, false))
	require.True(t, limiter.Acquire(ctx, false))

	start := time.Now()
	granted := limiter.Acquire(ctx, true)
	elapsed := time.Since(start)

	assert.True(t, granted, "waiting call should be admitted once the oldest grant expires")
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "the call must actually have waited")
}

func TestAcquireWaitCancelledByContext(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	require.True(t, limiter.Acquire(context.Background(), false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.False(t, limiter.Acquire(ctx, true))
}

func TestWindowNeverExceedsLimit(t *testing.T) {
	limiter := NewRateLimiter(5, 200*time.Millisecond)
	ctx := context.Background()

	granted := 0
	deadline := time.Now().Add(180 * time.Millisecond)
	for time.Now().Before(deadline) {
		if limiter.Acquire(ctx, false) {
			granted++
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.LessOrEqual(t, granted, 5, "a single window must never admit more than the limit")
}

func TestRateLimiterStats(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	stats := limiter.Stats()
	assert.Equal(t, 2, stats.Remaining)
	assert.Zero(t, stats.AvailableIn)

	require.True(t, limiter.Acquire(ctx, false))
	require.True(t, limiter.Acquire(ctx, false))

	stats = limiter.Stats()
	assert.Equal(t, 2, stats.CurrentRequests)
	assert.Zero(t, stats.Remaining)
	assert.Greater(t, stats.AvailableIn, 0.0)
}

func TestServiceRateLimitersFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Default: config.RateLimitPolicy{MaxRequests: 1, WindowSeconds: 60},
		Services: map[string]config.RateLimitPolicy{
			"google": {MaxRequests: 2, WindowSeconds: 60},
		},
	}
	limiters := NewServiceRateLimiters(cfg, testLogger())
	ctx := context.Background()

	// Configured service uses its own policy.
	assert.True(t, limiters.Acquire(ctx, "google", false))
	assert.True(t, limiters.Acquire(ctx, "google", false))
	assert.False(t, limiters.Acquire(ctx, "google", false))

	// Unknown services share the default limiter.
	assert.True(t, limiters.Acquire(ctx, "unknown-a", false))
	assert.False(t, limiters.Acquire(ctx, "unknown-b", false), "unknown services share one default window")
}

func TestServiceRateLimitersStats(t *testing.T) {
	cfg := config.RateLimitConfig{
		Default: config.RateLimitPolicy{MaxRequests: 10, WindowSeconds: 60},
		Services: map[string]config.RateLimitPolicy{
			"google": {MaxRequests: 100, WindowSeconds: 60},
			"serper": {MaxRequests: 50, WindowSeconds: 60},
		},
	}
	limiters := NewServiceRateLimiters(cfg, testLogger())

	stats := limiters.Stats()
	assert.Len(t, stats, 3)
	assert.Equal(t, 100, stats["google"].MaxRequests)
	assert.Equal(t, 50, stats["serper"].MaxRequests)
	assert.Equal(t, 10, stats["default"].MaxRequests)
}
