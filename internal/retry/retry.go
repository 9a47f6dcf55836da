// Package retry wraps network-facing operations in a bounded, linearly
// backed-off retry loop.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

// Policy configures Do. The wait before attempt n+1 is Delay × n.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// OnRetry, if set, is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Default returns the 3 attempts / 1s policy.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds or MaxAttempts is exhausted. The last
// attempt's error is returned unchanged. Attempts never overlap.
// If ctx is cancelled while waiting, ctx.Err() is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var v T
		v, err = op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, delay*time.Duration(attempt)); serr != nil {
			return zero, serr
		}
	}
	return zero, err
}
