// Package worker executes queued discovery tasks and records their terminal status.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
)

// Runner executes one task and reports how it ended.
type Runner interface {
	Run(ctx context.Context, item discovery.QueueItem) (discovery.Outcome, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a TaskEvent on every terminal transition. Empty disables events.
	Topic string
	// LogPath is quoted in the completion reason of failed tasks.
	LogPath string
}

// Worker consumes queue items and supervises their task jobs.
type Worker struct {
	queue     discovery.Queue
	store     discovery.TaskStore
	runner    Runner
	publisher discovery.Publisher
	clock     discovery.Clock
	tokens    *Tokens
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue discovery.Queue,
	store discovery.TaskStore,
	runner Runner,
	publisher discovery.Publisher,
	clock discovery.Clock,
	tokens *Tokens,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewTokens()
	}
	return &Worker{
		queue:     queue,
		store:     store,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		tokens:    tokens,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item discovery.QueueItem) {
	log := w.logger.With(zap.String("task_id", item.TaskID))

	status, err := w.store.GetStatus(ctx, item.TaskID)
	if err != nil {
		log.Error("load task status failed", zap.Error(err))
		return
	}
	if status.Terminal() {
		log.Info("task already finished, dropping job", zap.String("status", string(status)))
		return
	}
	if status.CancelRequested() {
		w.finish(ctx, item, discovery.CancelledOutcome(0, 0), log)
		return
	}

	// The token is registered before the transition so a cancel that lands
	// after it always finds the job.
	jobCtx, cancel := context.WithCancel(ctx)
	w.tokens.register(item.TaskID, cancel)
	defer func() {
		w.tokens.release(item.TaskID)
		cancel()
	}()

	started, err := w.store.MarkProcessing(ctx, item.TaskID)
	if err != nil {
		log.Error("update task status failed", zap.Error(err))
		return
	}
	if !started {
		w.settleUnstarted(ctx, item, log)
		return
	}
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	outcome, err := w.runSupervised(jobCtx, item)
	switch {
	case ctx.Err() != nil:
		log.Warn("shutdown interrupted task; startup sweep will fail it", zap.Error(err))
		return
	case err != nil && jobCtx.Err() != nil:
		outcome = discovery.CancelledOutcome(outcome.Accepted, outcome.Scanned)
	case err != nil:
		log.Error("task failed", zap.Error(err))
		outcome = discovery.Outcome{Status: discovery.StatusFailed, Reason: discovery.FailureReason(err, w.cfg.LogPath)}
	}
	w.finish(ctx, item, outcome, log)
}

// settleUnstarted handles a task whose status moved away from pending before
// the job could claim it.
func (w *Worker) settleUnstarted(ctx context.Context, item discovery.QueueItem, log *zap.Logger) {
	status, err := w.store.GetStatus(ctx, item.TaskID)
	if err != nil {
		log.Error("load task status failed", zap.Error(err))
		return
	}
	if status == discovery.StatusCancelling {
		w.finish(ctx, item, discovery.CancelledOutcome(0, 0), log)
		return
	}
	log.Warn("task no longer pending, dropping job", zap.String("status", string(status)))
}

func (w *Worker) runSupervised(ctx context.Context, item discovery.QueueItem) (outcome discovery.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return w.runner.Run(ctx, item)
}

func (w *Worker) finish(ctx context.Context, item discovery.QueueItem, outcome discovery.Outcome, log *zap.Logger) {
	if err := w.store.UpdateStatus(ctx, item.TaskID, outcome.Status, outcome.Reason); err != nil {
		log.Error("final task status update failed", zap.Error(err))
		return
	}
	metrics.ObserveTask(string(outcome.Status))
	log.Info("task finished",
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason),
		zap.Int("accepted", outcome.Accepted),
		zap.Int("scanned", outcome.Scanned),
	)
	w.publishEvent(ctx, item, outcome, log)
}

func (w *Worker) publishEvent(ctx context.Context, item discovery.QueueItem, outcome discovery.Outcome, log *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := discovery.TaskEvent{
		TaskID:         item.TaskID,
		Status:         outcome.Status,
		Reason:         outcome.Reason,
		ProcessedCount: outcome.Accepted,
		TargetCount:    item.Request.TargetCount,
		At:             w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		log.Warn("publish task event failed", zap.Error(err))
	}
}
