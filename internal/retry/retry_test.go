package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var calls int
	var retried []int
	policy := Constant(3, time.Millisecond).WithNotify(func(attempt int, _ error) {
		retried = append(retried, attempt)
	})

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls int
	err := Linear(3, time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestDoDoesNotRetryContextErrors(t *testing.T) {
	t.Parallel()

	var calls int
	err := Constant(5, time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}

func TestDoStopsWhenContextEndsDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Constant(3, time.Hour).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestLinearBackoff(t *testing.T) {
	t.Parallel()

	p := Linear(3, 2*time.Second)
	require.Equal(t, 2*time.Second, p.Backoff(1))
	require.Equal(t, 4*time.Second, p.Backoff(2))
}

func TestValueReturnsResult(t *testing.T) {
	t.Parallel()

	got, err := Value(context.Background(), Constant(2, 0), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}
