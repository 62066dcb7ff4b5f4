// Package retry runs network and provider calls under a bounded attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds the attempts of one call and spaces them out.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff returns the pause after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// OnRetry is invoked after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Linear waits step × attempt between tries.
func Linear(attempts int, step time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * step
		},
	}
}

// Constant waits the same delay between tries.
func Constant(attempts int, delay time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Backoff: func(int) time.Duration {
			return delay
		},
	}
}

// WithNotify returns a copy of p that reports retried failures to fn.
func (p Policy) WithNotify(fn func(attempt int, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Do calls fn until it succeeds, the attempt budget runs out, or ctx ends.
// Context errors are never retried.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry canceled: %w", err)
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if isContextErr(err) || attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if !pause(ctx, p.backoff(attempt)) {
			return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func pause(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
