package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &waits
}

func TestDo_PermanentFailureIsInvokedMaxAttemptsTimes(t *testing.T) {
	waits := recordSleeps(t)

	calls := 0
	var last error
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Second}, func(ctx context.Context) error {
		calls++
		last = fmt.Errorf("attempt %d failed", calls)
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Same(t, last, err, "last error must be propagated unchanged")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)

	var total time.Duration
	for _, w := range *waits {
		total += w
	}
	assert.GreaterOrEqual(t, total, 3*time.Second)
}

func TestDo_StopsOnFirstSuccess(t *testing.T) {
	waits := recordSleeps(t)

	calls := 0
	err := Do(context.Background(), Default(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, *waits)
}

func TestDo_OnRetrySeesEveryRetriedAttempt(t *testing.T) {
	recordSleeps(t)

	var seen []int
	p := Policy{MaxAttempts: 4, Delay: time.Millisecond, OnRetry: func(attempt int, err error) {
		seen = append(seen, attempt)
	}}
	_ = Do(context.Background(), p, func(ctx context.Context) error { return errors.New("x") })

	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDo_ZeroAttemptsFallsBackToDefault(t *testing.T) {
	recordSleeps(t)

	calls := 0
	_ = Do(context.Background(), Policy{}, func(ctx context.Context) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	recordSleeps(t)

	v, err := DoValue(context.Background(), Default(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_RealTimerWaitsLinearBackoff(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, Delay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
