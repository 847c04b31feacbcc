package queue

import "errors"

var (
	// ErrTaskNotFound is returned when a task id has no row in the task store
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotClaimable is returned when claiming a task that is not in a
	// deliverable state (already in flight or terminal)
	ErrTaskNotClaimable = errors.New("task not claimable")

	// ErrQueueClosed is returned when enqueueing on a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)
