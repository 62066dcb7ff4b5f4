// Package lifecycle owns task creation, cancellation, deletion and crash recovery.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
)

// Canceller fires the cancel token of a running task job.
type Canceller interface {
	Cancel(taskID string) bool
}

// Enqueuer hands task jobs to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item discovery.QueueItem) error
}

// Config holds creation defaults and the diagnostic log pointer.
type Config struct {
	TargetCount int
	Selection   discovery.ProviderSelection
	LogPath     string
}

// Manager implements the task lifecycle operations.
type Manager struct {
	store  discovery.Store
	creds  discovery.CredentialSource
	source discovery.Source
	queue  Enqueuer
	tokens Canceller
	ids    discovery.IDGenerator
	clock  discovery.Clock
	cfg    Config
	logger *zap.Logger
}

// New wires a Manager.
func New(
	store discovery.Store,
	creds discovery.CredentialSource,
	source discovery.Source,
	queue Enqueuer,
	tokens Canceller,
	ids discovery.IDGenerator,
	clock discovery.Clock,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		creds:  creds,
		source: source,
		queue:  queue,
		tokens: tokens,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Create validates the upstream session, inserts a pending task and queues its job.
func (m *Manager) Create(ctx context.Context, req discovery.CreateRequest) (string, error) {
	req, err := m.normalize(req)
	if err != nil {
		return "", err
	}
	if err := m.checkSession(ctx); err != nil {
		return "", err
	}

	id, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	now := m.clock.Now()
	task := discovery.Task{
		ID:          id,
		Prompt:      req.Prompt,
		Status:      discovery.StatusPending,
		Keywords:    []string{},
		TargetCount: req.TargetCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	metrics.ObserveTask(string(discovery.StatusPending))

	item := discovery.QueueItem{TaskID: id, Request: req, Submitted: now.Unix()}
	if err := m.queue.Enqueue(ctx, item); err != nil {
		reason := discovery.FailureReason(err, m.cfg.LogPath)
		if uerr := m.store.UpdateStatus(ctx, id, discovery.StatusFailed, reason); uerr != nil {
			m.logger.Error("mark unqueued task failed", zap.String("task_id", id), zap.Error(uerr))
		}
		return "", fmt.Errorf("queue task: %w", err)
	}
	m.logger.Info("task created",
		zap.String("task_id", id),
		zap.Int("target", req.TargetCount),
		zap.Bool("pinned", req.Pinned != nil),
	)
	return id, nil
}

// Cancel requests cooperative cancellation. Finished tasks are left untouched.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	status, err := m.store.GetStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if status.Terminal() {
		return nil
	}
	if err := m.store.UpdateStatus(ctx, id, discovery.StatusCancelling, ""); err != nil {
		return fmt.Errorf("mark task cancelling: %w", err)
	}
	fired := m.tokens != nil && m.tokens.Cancel(id)
	m.logger.Info("task cancel requested", zap.String("task_id", id), zap.Bool("token_fired", fired))
	return nil
}

// Delete stops a running job and removes the task with its articles.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.tokens != nil {
		m.tokens.Cancel(id)
	}
	if err := m.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	m.logger.Info("task deleted", zap.String("task_id", id))
	return nil
}

// Get returns a task and its articles, most similar first.
func (m *Manager) Get(ctx context.Context, id string) (discovery.Detail, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return discovery.Detail{}, fmt.Errorf("load task: %w", err)
	}
	articles, err := m.store.ListArticles(ctx, id)
	if err != nil {
		return discovery.Detail{}, fmt.Errorf("load articles: %w", err)
	}
	if articles == nil {
		articles = []discovery.Article{}
	}
	return discovery.Detail{Task: task, Articles: articles}, nil
}

// List returns every task, newest first.
func (m *Manager) List(ctx context.Context) ([]discovery.Task, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Sweep fails every task a previous process left running.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.SweepInterrupted(ctx, discovery.ReasonInterrupted)
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted tasks: %w", err)
	}
	if n > 0 {
		m.logger.Warn("failed interrupted tasks", zap.Int64("count", n))
	}
	return n, nil
}

func (m *Manager) checkSession(ctx context.Context) error {
	cred, err := m.creds.Current(ctx)
	if err != nil {
		if errors.Is(err, discovery.ErrAuthRequired) {
			return err
		}
		return fmt.Errorf("load credential: %w: %w", discovery.ErrAuthRequired, err)
	}
	if err := m.source.Probe(ctx, cred); err != nil {
		if errors.Is(err, discovery.ErrAuthRequired) || errors.Is(err, discovery.ErrAuthInvalid) {
			return err
		}
		return fmt.Errorf("%w: %w", discovery.ErrAuthInvalid, err)
	}
	return nil
}

func (m *Manager) normalize(req discovery.CreateRequest) (discovery.CreateRequest, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return req, fmt.Errorf("prompt is required: %w", discovery.ErrInvalidArgument)
	}
	if req.TargetCount == 0 {
		req.TargetCount = m.cfg.TargetCount
	}
	if req.TargetCount <= 0 {
		return req, fmt.Errorf("target_count must be positive: %w", discovery.ErrInvalidArgument)
	}
	sel := &req.Selection
	if sel.Keyword == "" {
		sel.Keyword = m.cfg.Selection.Keyword
	}
	if sel.Reasoning == "" {
		sel.Reasoning = m.cfg.Selection.Reasoning
	}
	if sel.Embedding == "" {
		sel.Embedding = m.cfg.Selection.Embedding
	}
	if sel.Speed == "" {
		sel.Speed = m.cfg.Selection.Speed
	}
	if req.Pinned != nil && (req.Pinned.ExternalID == "" || req.Pinned.DisplayName == "") {
		req.Pinned = nil
	}
	return req, nil
}
