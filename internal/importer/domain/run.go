package domain

import "time"

// Import run status constants
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// FailedRecord captures one per-record import failure
type FailedRecord struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// ImportRun is the audit entry for one pipeline execution. Append-only:
// once recorded it is never mutated.
type ImportRun struct {
	ID            string
	Source        string
	URL           string
	StartedAt     time.Time
	TotalFetched  int
	TotalImported int
	NewJobs       int
	UpdatedJobs   int
	FailedJobs    int
	FailedDetails []FailedRecord
	Duration      time.Duration
	Status        string
}

// DeriveStatus computes the run status from its counters:
// no failures is a success, failures alongside imports is partial,
// failures without a single import is failed.
func (r *ImportRun) DeriveStatus() string {
	switch {
	case r.FailedJobs == 0:
		return RunStatusSuccess
	case r.TotalImported > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}
