package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/quangbt/jobpulse/internal/queue"
)

// Storage persists fetch task state in PostgreSQL
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateTask inserts a freshly enqueued task
func (s *Storage) CreateTask(ctx context.Context, task *queue.FetchTask) error {
	query := `
		INSERT INTO fetch_tasks (
			task_id, source, url, status, attempts, max_attempts,
			last_error, enqueued_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.TaskID,
		task.Source,
		task.URL,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.LastError,
		task.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// ClaimTask transitions a QUEUED task to IN_FLIGHT and increments its
// delivery attempt counter, returning the claimed row
func (s *Storage) ClaimTask(ctx context.Context, taskID string) (*queue.FetchTask, error) {
	query := `
		UPDATE fetch_tasks
		SET status = $1,
		    attempts = attempts + 1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE task_id = $2
		  AND status = $3
		RETURNING task_id, source, url, status, attempts, max_attempts,
		          last_error, enqueued_at, started_at, updated_at
	`

	var task queue.FetchTask
	err := s.db.QueryRowxContext(ctx, query, queue.TaskStatusInFlight, taskID, queue.TaskStatusQueued).StructScan(&task)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if exists, existsErr := s.taskExists(ctx, taskID); existsErr == nil && !exists {
				return nil, queue.ErrTaskNotFound
			}
			s.logger.Warn("Failed to claim task - not in QUEUED status",
				slog.String("task_id", taskID),
			)
			return nil, queue.ErrTaskNotClaimable
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	return &task, nil
}

// DeleteTask removes a successfully processed task
func (s *Storage) DeleteTask(ctx context.Context, taskID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fetch_tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return queue.ErrTaskNotFound
	}

	return nil
}

// MarkRetrying records a failed delivery that still has attempts left
func (s *Storage) MarkRetrying(ctx context.Context, taskID, lastError string) error {
	return s.setStatus(ctx, taskID, queue.TaskStatusRetrying, lastError)
}

// MarkQueued returns a retrying task to the deliverable state
func (s *Storage) MarkQueued(ctx context.Context, taskID string) error {
	return s.setStatus(ctx, taskID, queue.TaskStatusQueued, "")
}

// MarkFailed parks a task in the terminal failed state. The row is retained
// for inspection, never auto-retried.
func (s *Storage) MarkFailed(ctx context.Context, taskID, lastError string) error {
	return s.setStatus(ctx, taskID, queue.TaskStatusFailed, lastError)
}

func (s *Storage) setStatus(ctx context.Context, taskID, status, lastError string) error {
	query := `
		UPDATE fetch_tasks
		SET status = $1,
		    last_error = CASE WHEN $2 = '' THEN last_error ELSE $2 END,
		    updated_at = NOW()
		WHERE task_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, lastError, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return queue.ErrTaskNotFound
	}

	return nil
}

// RequeueOrphans returns every non-terminal task for republishing, flipping
// IN_FLIGHT and RETRYING rows back to QUEUED. QUEUED rows are included: a
// crash or publish failure between the row write and the broker publish
// leaves a QUEUED row with no delivery behind it, and republishing a QUEUED
// task that does have a live delivery is harmless since the duplicate loses
// the claim race.
func (s *Storage) RequeueOrphans(ctx context.Context) ([]*queue.FetchTask, error) {
	query := `
		UPDATE fetch_tasks
		SET status = $1,
		    updated_at = NOW()
		WHERE status IN ($1, $2, $3)
		RETURNING task_id, source, url, status, attempts, max_attempts,
		          last_error, enqueued_at, started_at, updated_at
	`

	rows, err := s.db.QueryxContext(ctx, query,
		queue.TaskStatusQueued,
		queue.TaskStatusInFlight,
		queue.TaskStatusRetrying,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*queue.FetchTask
	for rows.Next() {
		var task queue.FetchTask
		if err := rows.StructScan(&task); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	return tasks, rows.Err()
}

func (s *Storage) taskExists(ctx context.Context, taskID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM fetch_tasks WHERE task_id = $1)`, taskID)
	return exists, err
}
