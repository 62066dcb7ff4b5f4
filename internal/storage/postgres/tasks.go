package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

const taskColumns = `id, prompt, status, keywords, target_count, processed_count, created_at, updated_at, completion_reason`

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, task discovery.Task) error {
	const query = `
INSERT INTO tasks (id, prompt, status, keywords, target_count, processed_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	keywords := task.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		task.ID,
		task.Prompt,
		string(task.Status),
		keywords,
		task.TargetCount,
		task.ProcessedCount,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads one task.
func (s *Store) GetTask(ctx context.Context, id string) (discovery.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.Task{}, discovery.ErrNotFound
	}
	if err != nil {
		return discovery.Task{}, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// ListTasks returns every task, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]discovery.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []discovery.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetStatus reads only the status column.
func (s *Store) GetStatus(ctx context.Context, id string) (discovery.Status, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", discovery.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select status: %w", err)
	}
	return discovery.Status(status), nil
}

// UpdateStatus writes the status and, when reason is non-empty, the completion reason.
func (s *Store) UpdateStatus(ctx context.Context, id string, status discovery.Status, reason string) error {
	const query = `
UPDATE tasks
SET status = $1,
	completion_reason = COALESCE(NULLIF($2, ''), completion_reason),
	updated_at = now()
WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

// MarkProcessing moves the task to processing only while it is still pending.
func (s *Store) MarkProcessing(ctx context.Context, id string) (bool, error) {
	const query = `
UPDATE tasks
SET status = $1, updated_at = now()
WHERE id = $2 AND status = $3`
	tag, err := s.pool.Exec(ctx, query,
		string(discovery.StatusProcessing),
		id,
		string(discovery.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetKeywords stores the generated keywords.
func (s *Store) SetKeywords(ctx context.Context, id string, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET keywords = $1, updated_at = now() WHERE id = $2`, keywords, id)
	if err != nil {
		return fmt.Errorf("update keywords: %w", err)
	}
	return nil
}

// SetProcessedCount stores the accepted article count.
func (s *Store) SetProcessedCount(ctx context.Context, id string, count int) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET processed_count = $1, updated_at = now() WHERE id = $2`, count, id)
	if err != nil {
		return fmt.Errorf("update processed count: %w", err)
	}
	return nil
}

// DeleteTask removes the task; its articles go with it through the cascading key.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

// SweepInterrupted fails every task left running by a previous process.
func (s *Store) SweepInterrupted(ctx context.Context, reason string) (int64, error) {
	const query = `
UPDATE tasks
SET status = $1, completion_reason = $2, updated_at = now()
WHERE status IN ($3, $4)`
	tag, err := s.pool.Exec(ctx, query,
		string(discovery.StatusFailed),
		reason,
		string(discovery.StatusProcessing),
		string(discovery.StatusCancelling),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTask(row pgx.Row) (discovery.Task, error) {
	var (
		task   discovery.Task
		status string
	)
	if err := row.Scan(
		&task.ID,
		&task.Prompt,
		&status,
		&task.Keywords,
		&task.TargetCount,
		&task.ProcessedCount,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletionReason,
	); err != nil {
		return discovery.Task{}, err
	}
	task.Status = discovery.Status(status)
	if task.Keywords == nil {
		task.Keywords = []string{}
	}
	return task, nil
}
