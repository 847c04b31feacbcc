package queue

import "time"

// Task status constants. The lifecycle is
// QUEUED -> IN_FLIGHT -> deleted on success,
//
//	-> RETRYING -> QUEUED while attempts remain,
//	-> FAILED once attempts are exhausted (terminal, retained).
const (
	TaskStatusQueued   = "QUEUED"
	TaskStatusInFlight = "IN_FLIGHT"
	TaskStatusRetrying = "RETRYING"
	TaskStatusFailed   = "FAILED"
)

// FetchTask is one (source, time) fetch request tracked by the queue
type FetchTask struct {
	TaskID      string     `db:"task_id"`
	Source      string     `db:"source"`
	URL         string     `db:"url"`
	Status      string     `db:"status"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	LastError   string     `db:"last_error"`
	EnqueuedAt  time.Time  `db:"enqueued_at"`
	StartedAt   *time.Time `db:"started_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// TaskMessage is the wire form of a task published to the broker
type TaskMessage struct {
	TaskID string `json:"task_id"`
	Source string `json:"source"`
	URL    string `json:"url"`
}
