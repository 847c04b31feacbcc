// Package importer merges batches of candidate records into the job store
// and records one audit run entry per batch.
package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quangbt/jobpulse/internal/importer/domain"
)

// JobStore is the write surface of the job store the engine merges into
type JobStore interface {
	FindJobByLink(ctx context.Context, link string) (*domain.StoredJob, error)
	InsertJob(ctx context.Context, rec *domain.CandidateRecord, source string) (*domain.StoredJob, error)
	UpdateJob(ctx context.Context, jobID string, rec *domain.CandidateRecord) error
}

// RunLog appends import run audit entries
type RunLog interface {
	InsertImportRun(ctx context.Context, run *domain.ImportRun) error
}

// Config holds import engine configuration
type Config struct {
	Logger     *slog.Logger
	Jobs       JobStore
	Runs       RunLog
	BatchSize  int           // records per sub-batch, 0 disables pacing
	BatchDelay time.Duration // pause between sub-batches
}

// Engine applies upsert-by-link merges for candidate records
type Engine struct {
	logger     *slog.Logger
	jobs       JobStore
	runs       RunLog
	batchSize  int
	batchDelay time.Duration
}

// NewEngine creates a new import engine
func NewEngine(cfg *Config) *Engine {
	return &Engine{
		logger:     cfg.Logger,
		jobs:       cfg.Jobs,
		runs:       cfg.Runs,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// Import merges a batch of candidate records into the job store. The batch
// never fails as a whole: every per-record failure is counted and recorded,
// and exactly one ImportRun is produced. Records are processed in input
// order so two sightings of the same link within one batch resolve as one
// create followed by one update.
func (e *Engine) Import(ctx context.Context, records []domain.CandidateRecord, source, originURL string) *domain.ImportRun {
	start := time.Now()

	run := &domain.ImportRun{
		ID:        uuid.New().String(),
		Source:    source,
		URL:       originURL,
		StartedAt: start,
	}

	for i := range records {
		rec := &records[i]

		if err := e.importRecord(ctx, rec, source, run); err != nil {
			run.FailedJobs++
			run.FailedDetails = append(run.FailedDetails, domain.FailedRecord{
				SourceID: rec.SourceID,
				Reason:   err.Error(),
			})
			e.logger.Error("Failed to import record",
				slog.String("source", source),
				slog.String("source_id", rec.SourceID),
				slog.String("error", err.Error()),
			)
		} else {
			run.TotalImported++
		}

		e.pace(ctx, i, len(records))
	}

	run.TotalFetched = len(records)
	run.Duration = time.Since(start)
	run.Status = run.DeriveStatus()

	e.logger.Info("Import batch complete",
		slog.String("source", source),
		slog.Int("fetched", run.TotalFetched),
		slog.Int("new", run.NewJobs),
		slog.Int("updated", run.UpdatedJobs),
		slog.Int("failed", run.FailedJobs),
		slog.String("status", run.Status),
		slog.Duration("duration", run.Duration),
	)

	// The run log is best-effort: an import's success is independent of
	// audit durability, so a log write failure is reported, not propagated.
	if err := e.runs.InsertImportRun(ctx, run); err != nil {
		e.logger.Error("Failed to record import run",
			slog.String("source", source),
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}

	return run
}

// importRecord applies one create-or-update merge keyed on link
func (e *Engine) importRecord(ctx context.Context, rec *domain.CandidateRecord, source string, run *domain.ImportRun) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	existing, err := e.jobs.FindJobByLink(ctx, rec.Link)
	switch {
	case err == nil:
		if err := e.jobs.UpdateJob(ctx, existing.ID, rec); err != nil {
			return err
		}
		run.UpdatedJobs++
		return nil

	case errors.Is(err, domain.ErrJobNotFound):
		if _, err := e.jobs.InsertJob(ctx, rec, source); err != nil {
			return err
		}
		run.NewJobs++
		return nil

	default:
		return err
	}
}

// pace sleeps between sub-batches when pacing is configured
func (e *Engine) pace(ctx context.Context, index, total int) {
	if e.batchSize <= 0 || e.batchDelay <= 0 {
		return
	}
	if (index+1)%e.batchSize != 0 || index+1 >= total {
		return
	}

	timer := time.NewTimer(e.batchDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
