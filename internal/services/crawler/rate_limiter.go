package crawler

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces navigations per worker slot with a token bucket. Each
// slot owns one browser session, so pacing follows the session.
type RateLimiter struct {
	limiters map[int]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
}

// NewRateLimiter creates a limiter allowing perSecond navigations per slot.
// perSecond <= 0 disables pacing.
func NewRateLimiter(perSecond float64) *RateLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimiter{
		limiters: make(map[int]*rate.Limiter),
		limit:    limit,
	}
}

// Wait blocks until slot may navigate again
func (rl *RateLimiter) Wait(ctx context.Context, slot int) error {
	return rl.limiter(slot).Wait(ctx)
}

func (rl *RateLimiter) limiter(slot int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[slot]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, 1)
		rl.limiters[slot] = limiter
	}
	return limiter
}
