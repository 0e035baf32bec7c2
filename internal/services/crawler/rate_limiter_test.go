package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_PacesEachSlot(t *testing.T) {
	limiter := NewRateLimiter(20) // one navigation per 50ms
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, 0))
	require.NoError(t, limiter.Wait(ctx, 0))
	require.NoError(t, limiter.Wait(ctx, 0))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimiter_SlotsAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1)
	ctx := context.Background()

	start := time.Now()
	for slot := 0; slot < 4; slot++ {
		require.NoError(t, limiter.Wait(ctx, slot))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRateLimiter_Unlimited(t *testing.T) {
	limiter := NewRateLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(ctx, 0))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRateLimiter_Cancelled(t *testing.T) {
	limiter := NewRateLimiter(0.1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx, 0))
	assert.Error(t, limiter.Wait(ctx, 0))
}
