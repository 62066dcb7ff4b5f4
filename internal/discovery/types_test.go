package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusCancelled, StatusCompleted, StatusFailed}
	live := []Status{StatusPending, StatusProcessing, StatusCancelling}
	for _, s := range terminal {
		require.True(t, s.Terminal(), s)
	}
	for _, s := range live {
		require.False(t, s.Terminal(), s)
	}
}

func TestStatusCancelRequested(t *testing.T) {
	t.Parallel()

	require.True(t, StatusCancelling.CancelRequested())
	require.True(t, StatusCancelled.CancelRequested())
	require.False(t, StatusProcessing.CancelRequested())
}

func TestParseProviderKind(t *testing.T) {
	t.Parallel()

	kind, ok := ParseProviderKind(" Gemini ")
	require.True(t, ok)
	require.Equal(t, ProviderGemini, kind)

	kind, ok = ParseProviderKind("openai")
	require.True(t, ok)
	require.Equal(t, ProviderOpenAICompatible, kind)

	_, ok = ParseProviderKind("cohere")
	require.False(t, ok)
}

func TestReasons(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Target Reached (30/30)", TargetReachedReason(30, 30))
	require.Equal(t, "Max Scan Limit Reached (1000)", ScanLimitReason(1000))
	require.Equal(t,
		"Unexpected Error: boom. Log: logs/discovery.log",
		FailureReason(errors.New("boom"), "logs/discovery.log"),
	)
}

type statusOnlyStore struct {
	TaskStore
	status Status
	err    error
}

func (s statusOnlyStore) GetStatus(context.Context, string) (Status, error) {
	return s.status, s.err
}

func TestStopRequested(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require.False(t, StopRequested(ctx, statusOnlyStore{status: StatusProcessing}, "t"))
	require.True(t, StopRequested(ctx, statusOnlyStore{status: StatusCancelling}, "t"))
	require.False(t, StopRequested(ctx, statusOnlyStore{err: ErrNotFound}, "t"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.True(t, StopRequested(cancelled, statusOnlyStore{status: StatusProcessing}, "t"))
}
