package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quangbt/jobpulse/internal/importer/domain"
)

const uniqueViolationCode = "23505"

// Storage handles the write side of the job store and the import run log
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

// FindJobByLink looks a job up by its canonical link.
// Returns domain.ErrJobNotFound when no job has been stored for the link.
func (s *Storage) FindJobByLink(ctx context.Context, link string) (*domain.StoredJob, error) {
	query := `
		SELECT id, title, description, company, location, job_type, category,
		       salary, link, source, source_id, external_id, posted_date,
		       is_active, created_at, updated_at
		FROM jobs
		WHERE link = $1
	`

	var job domain.StoredJob
	if err := s.db.GetContext(ctx, &job, query, link); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job by link: %w", err)
	}

	return &job, nil
}

// InsertJob creates a new stored job from a candidate record. The store's
// uniqueness constraints on link and external_id settle races between
// workers importing the same link: the loser gets domain.ErrDuplicateJob.
func (s *Storage) InsertJob(ctx context.Context, rec *domain.CandidateRecord, source string) (*domain.StoredJob, error) {
	now := time.Now()
	job := &domain.StoredJob{
		ID:          uuid.New().String(),
		Title:       rec.Title,
		Description: rec.Description,
		Company:     rec.Company,
		Location:    rec.Location,
		JobType:     rec.JobType,
		Category:    rec.Category,
		Salary:      rec.Salary,
		Link:        rec.Link,
		Source:      source,
		SourceID:    rec.SourceID,
		ExternalID:  rec.SourceID,
		PostedDate:  rec.PostedDate,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO jobs (
			id, title, description, company, location, job_type, category,
			salary, link, source, source_id, external_id, posted_date,
			is_active, created_at, updated_at
		) VALUES (
			:id, :title, :description, :company, :location, :job_type, :category,
			:salary, :link, :source, :source_id, :external_id, :posted_date,
			:is_active, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateJob, rec.Link)
		}
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

// UpdateJob applies an in-place merge of a candidate record onto an existing
// stored job. Only mutable fields change; link, source, external_id, and
// created_at are never touched.
func (s *Storage) UpdateJob(ctx context.Context, jobID string, rec *domain.CandidateRecord) error {
	query := `
		UPDATE jobs
		SET title = $1,
		    description = $2,
		    company = $3,
		    location = $4,
		    job_type = $5,
		    category = $6,
		    salary = $7,
		    posted_date = $8,
		    updated_at = NOW()
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Title,
		rec.Description,
		rec.Company,
		rec.Location,
		rec.JobType,
		rec.Category,
		rec.Salary,
		rec.PostedDate,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// InsertImportRun appends one audit entry to the import run log
func (s *Storage) InsertImportRun(ctx context.Context, run *domain.ImportRun) error {
	details, err := json.Marshal(run.FailedDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal failed details: %w", err)
	}

	query := `
		INSERT INTO import_runs (
			id, source, url, started_at, total_fetched, total_imported,
			new_jobs, updated_jobs, failed_jobs, failed_details,
			duration_ms, status
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12
		)
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Source,
		run.URL,
		run.StartedAt,
		run.TotalFetched,
		run.TotalImported,
		run.NewJobs,
		run.UpdatedJobs,
		run.FailedJobs,
		details,
		run.Duration.Milliseconds(),
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}

	s.logger.Info("Import run recorded",
		slog.String("run_id", run.ID),
		slog.String("source", run.Source),
		slog.String("status", run.Status),
	)

	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode
}
