// Package worker runs the bounded pool of executors that drain the fetch
// task queue and drive the fetch -> import pipeline.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/quangbt/jobpulse/internal/importer/domain"
	"github.com/quangbt/jobpulse/internal/queue"
	"github.com/quangbt/jobpulse/shared/rabbitmq"
)

// Fetcher retrieves and normalizes one feed document
type Fetcher interface {
	Fetch(ctx context.Context, url, sourceKey string) ([]domain.CandidateRecord, error)
}

// Importer merges a batch of candidate records into the job store
type Importer interface {
	Import(ctx context.Context, records []domain.CandidateRecord, source, originURL string) *domain.ImportRun
}

// TaskQueue is the queue-side surface the worker reports outcomes to
type TaskQueue interface {
	Claim(ctx context.Context, taskID string) (*queue.FetchTask, error)
	Ack(ctx context.Context, task *queue.FetchTask) error
	Nack(ctx context.Context, task *queue.FetchTask, cause error) (bool, error)
	Recover(ctx context.Context) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Queue         TaskQueue
	Fetcher       Fetcher
	Importer      Importer
	Concurrency   int
	PrefetchCount int
	FetchTimeout  time.Duration
}

// Worker consumes task deliveries and processes them on a bounded pool
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	queue         TaskQueue
	fetcher       Fetcher
	importer      Importer
	concurrency   int
	prefetchCount int
	fetchTimeout  time.Duration
	workerID      string
	tasksChan     chan *taskDelivery
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		queue:         cfg.Queue,
		fetcher:       cfg.Fetcher,
		importer:      cfg.Importer,
		concurrency:   concurrency,
		prefetchCount: cfg.PrefetchCount,
		fetchTimeout:  cfg.FetchTimeout,
		workerID:      fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		tasksChan:     make(chan *taskDelivery),
		stopChan:      make(chan struct{}),
	}
}

// Start recovers orphaned tasks, spawns the pool, and dispatches deliveries
// until the context is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("fetch_timeout", w.fetchTimeout),
	)

	if err := w.queue.Recover(ctx); err != nil {
		w.logger.Error("Failed to recover orphaned tasks",
			slog.String("error", err.Error()),
		)
	}

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker, letting in-flight tasks finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
