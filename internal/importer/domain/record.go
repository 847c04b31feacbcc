package domain

import "time"

// CandidateRecord is one normalized entry produced by a feed fetch.
// It is ephemeral: the import engine either merges it into the job store
// or records it as a failure.
type CandidateRecord struct {
	Title       string
	Description string
	Company     string
	Location    string
	JobType     string
	Category    string
	Salary      string // optional, empty when the feed carries none
	Link        string // dedup key
	PostedDate  time.Time
	SourceID    string
}

// Validate checks the invariants a record must satisfy before it may
// touch the store
func (r *CandidateRecord) Validate() error {
	if r.Link == "" {
		return ErrMissingLink
	}
	if r.SourceID == "" {
		return ErrMissingSourceID
	}
	if r.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

// StoredJob is the persistent form of a job posting. Link is the natural
// merge key: re-importing the same link updates mutable fields in place and
// never touches Link, Source, ExternalID, or CreatedAt.
type StoredJob struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Company     string    `db:"company"`
	Location    string    `db:"location"`
	JobType     string    `db:"job_type"`
	Category    string    `db:"category"`
	Salary      string    `db:"salary"`
	Link        string    `db:"link"`
	Source      string    `db:"source"`
	SourceID    string    `db:"source_id"`
	ExternalID  string    `db:"external_id"`
	PostedDate  time.Time `db:"posted_date"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
