package domain

import "errors"

var (
	// ErrMissingLink is returned when a candidate record has no canonical link
	ErrMissingLink = errors.New("validation failed: link is required")

	// ErrMissingSourceID is returned when a candidate record has no source identifier
	ErrMissingSourceID = errors.New("validation failed: source identifier is required")

	// ErrMissingTitle is returned when a candidate record has no title
	ErrMissingTitle = errors.New("validation failed: title is required")

	// ErrJobNotFound is returned when a job cannot be found by its link
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when an insert trips the store's
	// uniqueness constraint on link or external_id
	ErrDuplicateJob = errors.New("duplicate job: link or external id already exists")
)
