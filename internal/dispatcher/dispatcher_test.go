// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	queuememory "github.com/JakeFAU/insight-discovery/internal/queue/memory"
	"github.com/JakeFAU/insight-discovery/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), discovery.QueueItem{TaskID: "task"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDispatcherEnqueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(1)
	dispatch := New(queue, nil)

	require.NoError(t, dispatch.Enqueue(context.Background(), discovery.QueueItem{TaskID: "a"}))
	err := dispatch.Enqueue(context.Background(), discovery.QueueItem{TaskID: "b"})
	require.ErrorIs(t, err, queuememory.ErrQueueFull)
	require.Equal(t, 1, queue.Len())
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ discovery.QueueItem) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (discovery.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return discovery.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, discovery.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (discovery.QueueItem, error) {
	return discovery.QueueItem{}, nil
}
