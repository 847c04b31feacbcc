package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quangbt/jobpulse/internal/importer/domain"
	"github.com/quangbt/jobpulse/shared/postgresql"
)

// Storage is the read side of the dashboard API. All writes go through the
// importer and queue packages; this layer only serves queries.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// JobFilter narrows a job listing. Zero-value fields are ignored.
type JobFilter struct {
	Category string
	Source   string
	Search   string
	Limit    int
	Offset   int
}

func (f *JobFilter) where() (string, []interface{}) {
	where := " WHERE is_active = TRUE"
	args := []interface{}{}
	argIdx := 1

	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, f.Category)
		argIdx++
	}

	if f.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, f.Source)
		argIdx++
	}

	if f.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR company ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}

	return where, args
}

// ListJobs returns one page of active jobs, newest posting first
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.StoredJob, error) {
	where, args := filter.where()

	query := `
		SELECT id, title, description, company, location, job_type, category,
		       salary, link, source, source_id, external_id, posted_date,
		       is_active, created_at, updated_at
		FROM jobs
	` + where

	query += fmt.Sprintf(" ORDER BY posted_date DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	var jobs []domain.StoredJob
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// CountJobs returns how many jobs match the filter, ignoring pagination
func (s *Storage) CountJobs(ctx context.Context, filter JobFilter) (int, error) {
	where, args := filter.where()

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM jobs"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return total, nil
}

// FailedDetails lets sqlx scan the failed_details JSON column directly
type FailedDetails []domain.FailedRecord

func (d *FailedDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported failed_details type %T", src)
	}
}

func (d FailedDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// ImportRunRow is the run log entry as stored
type ImportRunRow struct {
	ID            string        `db:"id"`
	Source        string        `db:"source"`
	URL           string        `db:"url"`
	StartedAt     time.Time     `db:"started_at"`
	TotalFetched  int           `db:"total_fetched"`
	TotalImported int           `db:"total_imported"`
	NewJobs       int           `db:"new_jobs"`
	UpdatedJobs   int           `db:"updated_jobs"`
	FailedJobs    int           `db:"failed_jobs"`
	FailedDetails FailedDetails `db:"failed_details"`
	DurationMs    int64         `db:"duration_ms"`
	Status        string        `db:"status"`
}

// ListImportRuns returns one page of the run log, newest first
func (s *Storage) ListImportRuns(ctx context.Context, limit, offset int) ([]ImportRunRow, error) {
	query := `
		SELECT id, source, url, started_at, total_fetched, total_imported,
		       new_jobs, updated_jobs, failed_jobs, failed_details,
		       duration_ms, status
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	var runs []ImportRunRow
	if err := s.db.SelectContext(ctx, &runs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}

	return runs, nil
}

// CountImportRuns returns the total number of run log entries
func (s *Storage) CountImportRuns(ctx context.Context) (int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM import_runs"); err != nil {
		return 0, fmt.Errorf("failed to count import runs: %w", err)
	}

	return total, nil
}

// SourceStats aggregates the run log per source
type SourceStats struct {
	Source        string  `db:"source"`
	TotalImports  int     `db:"total_imports"`
	TotalJobs     int     `db:"total_jobs"`
	NewJobs       int     `db:"new_jobs"`
	UpdatedJobs   int     `db:"updated_jobs"`
	FailedJobs    int     `db:"failed_jobs"`
	AvgDurationMs float64 `db:"avg_duration_ms"`
}

// StatsBySource aggregates the whole run log grouped by source, most
// frequently imported source first
func (s *Storage) StatsBySource(ctx context.Context) ([]SourceStats, error) {
	query := `
		SELECT source,
		       COUNT(*) AS total_imports,
		       COALESCE(SUM(total_imported), 0) AS total_jobs,
		       COALESCE(SUM(new_jobs), 0) AS new_jobs,
		       COALESCE(SUM(updated_jobs), 0) AS updated_jobs,
		       COALESCE(SUM(failed_jobs), 0) AS failed_jobs,
		       COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM import_runs
		GROUP BY source
		ORDER BY total_imports DESC
	`

	var stats []SourceStats
	if err := s.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate import stats: %w", err)
	}

	return stats, nil
}
