package backoff

import (
	"context"
	"time"
)

// Policy configures the delay schedule between attempts.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns a 250ms initial delay that doubles on each
// attempt up to a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry invokes attempt until it returns a nil error, the deadline
// elapses, or ctx is canceled.
//
// deadline <= 0 means "exactly one attempt": attempt runs once and its
// result (success or failure) is returned immediately, with no retry
// and no delay.
//
// On timeout, Retry returns the last error attempt produced.
func Retry[T any](ctx context.Context, policy Policy, deadline time.Duration, attempt func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	wait := policy.InitialDelay
	if wait <= 0 {
		wait = DefaultPolicy().InitialDelay
	}

	var lastErr error
	for {
		result, err := attempt(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}

		if deadline <= 0 {
			var zero T
			return zero, lastErr
		}

		elapsed := time.Since(start)
		if elapsed >= deadline {
			var zero T
			return zero, lastErr
		}

		sleep := wait
		if remaining := deadline - elapsed; sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}

		wait = time.Duration(float64(wait) * policy.Multiplier)
		if wait > policy.MaxDelay {
			wait = policy.MaxDelay
		}
	}
}
