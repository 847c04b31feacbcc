package handler

import (
	"context"
	"log/slog"

	"github.com/quangbt/jobpulse/internal/api/storage"
	"github.com/quangbt/jobpulse/internal/importer/domain"
)

// JobReader serves job listing queries
type JobReader interface {
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.StoredJob, error)
	CountJobs(ctx context.Context, filter storage.JobFilter) (int, error)
}

// RunReader serves import run log queries
type RunReader interface {
	ListImportRuns(ctx context.Context, limit, offset int) ([]storage.ImportRunRow, error)
	CountImportRuns(ctx context.Context) (int, error)
	StatsBySource(ctx context.Context) ([]storage.SourceStats, error)
}

// StatsCache is an optional read-through cache for the stats endpoint
type StatsCache interface {
	GetJSON(ctx context.Context, key string, out interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Jobs   JobReader
	Runs   RunReader
	Cache  StatsCache
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobReader
	runs   RunReader
	cache  StatsCache
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		runs:   deps.Runs,
		cache:  deps.Cache,
	}
}

// totalPages rounds total/limit up; an empty result set has zero pages
func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
