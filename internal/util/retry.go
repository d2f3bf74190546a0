package util

import (
	"context"
	"errors"
	"time"
)

const maxBackoff = time.Minute

// RetryWithBackoff calls fn up to maxTries times until it succeeds, pausing
// between attempts. The pause starts at initial and doubles up to one
// minute. Context errors, from ctx or returned by fn, stop the loop at once.
// If maxTries <= 0, it defaults to 1.
func RetryWithBackoff[T any](
	ctx context.Context,
	maxTries int,
	initial time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var zero T
	var lastErr error
	wait := initial
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
			wait = min(wait*2, maxBackoff)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryErrWithBackoff is RetryWithBackoff for functions without a result.
func RetryErrWithBackoff(ctx context.Context, maxTries int, initial time.Duration, fn func(context.Context) error) error {
	_, err := RetryWithBackoff(ctx, maxTries, initial, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
