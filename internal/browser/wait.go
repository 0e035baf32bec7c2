package browser

import (
	"context"
	"time"
)

// Waiter is one signal raced by WaitFirst. Wait returns nil once its signal
// fired and must return when ctx is cancelled.
type Waiter struct {
	Name string
	Wait func(ctx context.Context) error
}

// WaitFirst runs every waiter and returns the name of the first to succeed.
// The others are cancelled. It returns ErrTimeout when nothing fires within
// timeout, or the last waiter error when all of them failed.
func WaitFirst(ctx context.Context, timeout time.Duration, waiters ...Waiter) (string, error) {
	if len(waiters) == 0 {
		return "", nil
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(waiters))

	for _, w := range waiters {
		w := w
		go func() {
			results <- outcome{name: w.Name, err: w.Wait(raceCtx)}
		}()
	}

	var lastErr error
	for range waiters {
		select {
		case r := <-results:
			if r.err == nil {
				return r.name, nil
			}
			if raceCtx.Err() == nil {
				lastErr = r.err
			}
		case <-raceCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrTimeout
		}
	}

	if lastErr == nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = ErrTimeout
	}
	return "", lastErr
}
