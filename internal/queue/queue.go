// Package queue implements the durable fetch-task queue: RabbitMQ carries
// deliveries, PostgreSQL carries each task's retry state. Delivery is
// at-least-once; the import engine's upsert-by-link merge makes reprocessing
// idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStore persists task state transitions
type TaskStore interface {
	CreateTask(ctx context.Context, task *FetchTask) error
	ClaimTask(ctx context.Context, taskID string) (*FetchTask, error)
	DeleteTask(ctx context.Context, taskID string) error
	MarkRetrying(ctx context.Context, taskID, lastError string) error
	MarkQueued(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID, lastError string) error
	RequeueOrphans(ctx context.Context) ([]*FetchTask, error)
}

// Publisher publishes task messages to the broker
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Config holds task queue configuration
type Config struct {
	Logger      *slog.Logger
	Store       TaskStore
	Publisher   Publisher
	MaxAttempts int
	BackoffBase time.Duration
}

// TaskQueue coordinates the task state machine around broker deliveries
type TaskQueue struct {
	logger      *slog.Logger
	store       TaskStore
	publisher   Publisher
	maxAttempts int
	backoffBase time.Duration

	mu     sync.Mutex
	closed bool
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// New creates a new TaskQueue
func New(cfg *Config) *TaskQueue {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}

	return &TaskQueue{
		logger:      cfg.Logger,
		store:       cfg.Store,
		publisher:   cfg.Publisher,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		timers:      make(map[string]*time.Timer),
	}
}

// Enqueue records a new fetch task and publishes it for delivery
func (q *TaskQueue) Enqueue(ctx context.Context, source, url string) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", ErrQueueClosed
	}

	task := &FetchTask{
		TaskID:      uuid.New().String(),
		Source:      source,
		URL:         url,
		Status:      TaskStatusQueued,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  time.Now(),
	}

	if err := q.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	if err := q.publish(ctx, task); err != nil {
		// The row stays QUEUED; Recover republishes it on the next start
		return "", err
	}

	q.logger.Info("Task enqueued",
		slog.String("task_id", task.TaskID),
		slog.String("source", source),
	)

	return task.TaskID, nil
}

// Claim transitions a delivered task to in-flight and increments its
// delivery attempt counter
func (q *TaskQueue) Claim(ctx context.Context, taskID string) (*FetchTask, error) {
	task, err := q.store.ClaimTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	q.logger.Info("Task claimed",
		slog.String("task_id", task.TaskID),
		slog.String("source", task.Source),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_attempts", task.MaxAttempts),
	)

	return task, nil
}

// Ack completes a task: the row is removed, only the audit trail of the
// import run remains
func (q *TaskQueue) Ack(ctx context.Context, task *FetchTask) error {
	if err := q.store.DeleteTask(ctx, task.TaskID); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	q.logger.Info("Task completed",
		slog.String("task_id", task.TaskID),
		slog.String("source", task.Source),
	)

	return nil
}

// Nack reports a failed delivery. While attempts remain the task moves to
// RETRYING and is republished after an exponential backoff; the final
// failure parks it in a terminal FAILED state where it stays queryable.
// Returns true when a redelivery was scheduled.
func (q *TaskQueue) Nack(ctx context.Context, task *FetchTask, cause error) (bool, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	if task.Attempts >= task.MaxAttempts {
		if err := q.store.MarkFailed(ctx, task.TaskID, reason); err != nil {
			return false, fmt.Errorf("failed to mark task failed: %w", err)
		}

		q.logger.Warn("Task exhausted all delivery attempts",
			slog.String("task_id", task.TaskID),
			slog.String("source", task.Source),
			slog.Int("attempts", task.Attempts),
			slog.String("last_error", reason),
		)

		return false, nil
	}

	if err := q.store.MarkRetrying(ctx, task.TaskID, reason); err != nil {
		return false, fmt.Errorf("failed to mark task retrying: %w", err)
	}

	delay := q.backoffDelay(task.Attempts)
	q.scheduleRedelivery(task, delay)

	q.logger.Info("Task scheduled for redelivery",
		slog.String("task_id", task.TaskID),
		slog.String("source", task.Source),
		slog.Int("attempt", task.Attempts),
		slog.Duration("delay", delay),
	)

	return true, nil
}

// backoffDelay grows exponentially from the base: attempt 1 waits one base,
// attempt 2 two, attempt 3 four.
func (q *TaskQueue) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.backoffBase * time.Duration(1<<(attempt-1))
}

// scheduleRedelivery republishes the task after the backoff delay
func (q *TaskQueue) scheduleRedelivery(task *FetchTask, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.wg.Add(1)
	q.timers[task.TaskID] = time.AfterFunc(delay, func() {
		defer q.wg.Done()

		q.mu.Lock()
		delete(q.timers, task.TaskID)
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return
		}

		q.redeliver(task)
	})
}

// redeliver flips a retrying task back to QUEUED and publishes it again
func (q *TaskQueue) redeliver(task *FetchTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.store.MarkQueued(ctx, task.TaskID); err != nil {
		q.logger.Error("Failed to requeue task",
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := q.publish(ctx, task); err != nil {
		q.logger.Error("Failed to republish task",
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()),
		)
		return
	}

	q.logger.Info("Task redelivered",
		slog.String("task_id", task.TaskID),
		slog.String("source", task.Source),
	)
}

func (q *TaskQueue) publish(ctx context.Context, task *FetchTask) error {
	body, err := json.Marshal(TaskMessage{
		TaskID: task.TaskID,
		Source: task.Source,
		URL:    task.URL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %w", err)
	}

	if err := q.publisher.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	return nil
}

// Recover republishes every non-terminal task a previous process left
// behind: IN_FLIGHT and RETRYING rows from a crash mid-processing, and
// QUEUED rows whose broker publish never happened or failed. Duplicate
// deliveries for tasks that were still live lose the claim race and are
// dropped.
func (q *TaskQueue) Recover(ctx context.Context) error {
	orphans, err := q.store.RequeueOrphans(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}

	for _, task := range orphans {
		if err := q.publish(ctx, task); err != nil {
			q.logger.Error("Failed to republish recovered task",
				slog.String("task_id", task.TaskID),
				slog.String("error", err.Error()),
			)
			continue
		}

		q.logger.Info("Recovered orphaned task",
			slog.String("task_id", task.TaskID),
			slog.String("source", task.Source),
		)
	}

	return nil
}

// Close stops accepting work and cancels pending redelivery timers.
// Tasks parked in RETRYING are picked up again on the next process start.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for taskID, timer := range q.timers {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.timers, taskID)
	}
	q.mu.Unlock()

	q.wg.Wait()

	q.logger.Info("Task queue closed")
}
