package common

import (
	"context"
	"math/rand"
	"time"
)

// RandBetween returns a random integer in [min, max]
func RandBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// RandomDuration returns a random duration in [min, max]
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Sleep waits for d, returning early with ctx.Err() when ctx is cancelled
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RandomClickPoint picks a point well inside a box: within the leading 70% of its
// width and 40% of its height, never on the border.
func RandomClickPoint(x, y, width, height float64) (float64, float64) {
	clickableWidth := int(0.7*width + 0.999)
	clickableHeight := int(0.4*height + 0.999)
	if clickableWidth < 1 {
		clickableWidth = 1
	}
	if clickableHeight < 1 {
		clickableHeight = 1
	}
	return x + float64(RandBetween(1, clickableWidth)), y + float64(RandBetween(1, clickableHeight))
}
