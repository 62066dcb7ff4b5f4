// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   discovery.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue discovery.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// tryEnqueuer is implemented by queues that can refuse work instead of blocking.
type tryEnqueuer interface {
	TryEnqueue(item discovery.QueueItem) error
}

// Enqueue hands a task job to the worker pool. Queues that support it reject
// work when full rather than holding the caller.
func (d *Dispatcher) Enqueue(ctx context.Context, item discovery.QueueItem) error {
	var err error
	if q, ok := d.queue.(tryEnqueuer); ok {
		err = q.TryEnqueue(item)
	} else {
		err = d.queue.Enqueue(ctx, item)
	}
	if err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
