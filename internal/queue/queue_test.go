package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*FetchTask
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[string]*FetchTask)}
}

func (f *fakeTaskStore) get(taskID string) *FetchTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID]
}

func (f *fakeTaskStore) CreateTask(_ context.Context, task *FetchTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.TaskID] = &copied
	return nil
}

func (f *fakeTaskStore) ClaimTask(_ context.Context, taskID string) (*FetchTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if task.Status != TaskStatusQueued {
		return nil, ErrTaskNotClaimable
	}
	task.Status = TaskStatusInFlight
	task.Attempts++
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return ErrTaskNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeTaskStore) setStatus(taskID, status, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	task.Status = status
	if lastError != "" {
		task.LastError = lastError
	}
	return nil
}

func (f *fakeTaskStore) MarkRetrying(_ context.Context, taskID, lastError string) error {
	return f.setStatus(taskID, TaskStatusRetrying, lastError)
}

func (f *fakeTaskStore) MarkQueued(_ context.Context, taskID string) error {
	return f.setStatus(taskID, TaskStatusQueued, "")
}

func (f *fakeTaskStore) MarkFailed(_ context.Context, taskID, lastError string) error {
	return f.setStatus(taskID, TaskStatusFailed, lastError)
}

func (f *fakeTaskStore) RequeueOrphans(_ context.Context) ([]*FetchTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orphans []*FetchTask
	for _, task := range f.tasks {
		if task.Status != TaskStatusFailed {
			task.Status = TaskStatusQueued
			copied := *task
			orphans = append(orphans, &copied)
		}
	}
	return orphans, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []TaskMessage
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var msg TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestQueue(store TaskStore, pub Publisher, backoff time.Duration) *TaskQueue {
	return New(&Config{
		Logger:      slog.New(slog.DiscardHandler),
		Store:       store,
		Publisher:   pub,
		MaxAttempts: 3,
		BackoffBase: backoff,
	})
}

func TestEnqueuePublishesTask(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, time.Second)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task := store.get(taskID)
	require.NotNil(t, task)
	assert.Equal(t, TaskStatusQueued, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Equal(t, 3, task.MaxAttempts)

	require.Equal(t, 1, pub.count())
	assert.Equal(t, taskID, pub.messages[0].TaskID)
	assert.Equal(t, "jobicy_all", pub.messages[0].Source)
}

func TestEnqueueOnClosedQueue(t *testing.T) {
	q := newTestQueue(newFakeTaskStore(), &fakePublisher{}, time.Second)
	q.Close()

	_, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueuePublishFailure(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("broker down")}
	q := newTestQueue(newFakeTaskStore(), pub, time.Second)
	defer q.Close()

	_, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish task")
}

func TestClaimIncrementsAttempts(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, time.Second)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	task, err := q.Claim(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, TaskStatusInFlight, task.Status)

	// A second claim while in flight is rejected
	_, err = q.Claim(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrTaskNotClaimable)
}

func TestAckRemovesTask(t *testing.T) {
	store := newFakeTaskStore()
	q := newTestQueue(store, &fakePublisher{}, time.Second)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	task, err := q.Claim(context.Background(), taskID)
	require.NoError(t, err)

	require.NoError(t, q.Ack(context.Background(), task))
	assert.Nil(t, store.get(taskID))
}

func TestNackSchedulesRedelivery(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, 10*time.Millisecond)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	task, err := q.Claim(context.Background(), taskID)
	require.NoError(t, err)

	requeued, err := q.Nack(context.Background(), task, fmt.Errorf("network timeout"))
	require.NoError(t, err)
	assert.True(t, requeued)
	assert.Equal(t, TaskStatusRetrying, store.get(taskID).Status)
	assert.Equal(t, "network timeout", store.get(taskID).LastError)

	// After the backoff fires the task is queued and published again
	require.Eventually(t, func() bool {
		return pub.count() == 2 && store.get(taskID).Status == TaskStatusQueued
	}, time.Second, 5*time.Millisecond)
}

func TestThreeFailuresReachTerminalState(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, time.Millisecond)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		var task *FetchTask
		require.Eventually(t, func() bool {
			var claimErr error
			task, claimErr = q.Claim(context.Background(), taskID)
			return claimErr == nil
		}, time.Second, time.Millisecond, "attempt %d never became claimable", attempt)

		assert.Equal(t, attempt, task.Attempts)

		requeued, err := q.Nack(context.Background(), task, fmt.Errorf("fetch failed"))
		require.NoError(t, err)
		assert.Equal(t, attempt < 3, requeued)
	}

	// Terminal: retained, queryable, never claimable again
	final := store.get(taskID)
	require.NotNil(t, final, "exhausted task must be retained")
	assert.Equal(t, TaskStatusFailed, final.Status)
	assert.Equal(t, "fetch failed", final.LastError)

	_, err = q.Claim(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrTaskNotClaimable)

	// No fourth delivery is ever published
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, pub.count())
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	q := newTestQueue(newFakeTaskStore(), &fakePublisher{}, 2*time.Second)
	defer q.Close()

	assert.Equal(t, 2*time.Second, q.backoffDelay(1))
	assert.Equal(t, 4*time.Second, q.backoffDelay(2))
	assert.Equal(t, 8*time.Second, q.backoffDelay(3))
}

func TestCloseCancelsPendingRedelivery(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, time.Hour)

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	task, err := q.Claim(context.Background(), taskID)
	require.NoError(t, err)

	_, err = q.Nack(context.Background(), task, errors.New("transient"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while a redelivery timer was pending")
	}

	// The task stays in RETRYING and is recoverable on restart
	assert.Equal(t, TaskStatusRetrying, store.get(taskID).Status)
}

func TestRecoverRepublishesOrphans(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{}
	q := newTestQueue(store, pub, time.Second)
	defer q.Close()

	taskID, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.NoError(t, err)

	_, err = q.Claim(context.Background(), taskID)
	require.NoError(t, err)

	// Simulate a process death while the task was in flight
	require.NoError(t, q.Recover(context.Background()))

	assert.Equal(t, TaskStatusQueued, store.get(taskID).Status)
	assert.Equal(t, 2, pub.count())
}

func TestRecoverRepublishesQueuedTaskWithoutDelivery(t *testing.T) {
	store := newFakeTaskStore()
	pub := &fakePublisher{err: fmt.Errorf("broker down")}
	q := newTestQueue(store, pub, time.Second)
	defer q.Close()

	// The publish fails after the row is written, leaving a QUEUED row
	// with no delivery behind it
	_, err := q.Enqueue(context.Background(), "jobicy_all", "https://example.com/feed")
	require.Error(t, err)

	var taskID string
	store.mu.Lock()
	for id := range store.tasks {
		taskID = id
	}
	store.mu.Unlock()
	require.NotEmpty(t, taskID)
	assert.Equal(t, TaskStatusQueued, store.get(taskID).Status)

	// Broker comes back; the next start rescues the stranded row
	pub.setErr(nil)
	require.NoError(t, q.Recover(context.Background()))

	assert.Equal(t, 1, pub.count())
	assert.Equal(t, taskID, pub.messages[0].TaskID)
	assert.Equal(t, TaskStatusQueued, store.get(taskID).Status)
}
