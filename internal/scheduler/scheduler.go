package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quangbt/jobpulse/internal/config"
)

// Enqueuer accepts fetch tasks for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, source, url string) (string, error)
}

// Scheduler wraps robfig/cron and enqueues one fetch task per configured
// source on every tick. A startup kick runs one cycle shortly after boot so
// a fresh deployment does not sit empty until the next full hour.
type Scheduler struct {
	logger       *slog.Logger
	cron         *cron.Cron
	queue        Enqueuer
	sources      []config.SourceConfig
	spec         string
	startupDelay time.Duration
	startupTimer *time.Timer
	kickWG       sync.WaitGroup
}

// Config holds scheduler dependencies
type Config struct {
	Logger       *slog.Logger
	Queue        Enqueuer
	Sources      []config.SourceConfig
	CronSpec     string
	StartupDelay time.Duration
}

// NewScheduler creates a scheduler instance
func NewScheduler(cfg *Config) *Scheduler {
	return &Scheduler{
		logger:       cfg.Logger,
		cron:         cron.New(),
		queue:        cfg.Queue,
		sources:      cfg.Sources,
		spec:         cfg.CronSpec,
		startupDelay: cfg.StartupDelay,
	}
}

// Start registers the cron entry and arms the startup kick. It returns
// immediately; ticks fire on the cron's own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.RunCycle(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register cron entry %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("cron_spec", s.spec),
		slog.Int("sources", len(s.sources)),
		slog.Duration("startup_delay", s.startupDelay),
	)

	// Kick one cycle after a short delay instead of waiting for the first
	// tick. The delay gives the worker service time to come up.
	s.kickWG.Add(1)
	s.startupTimer = time.AfterFunc(s.startupDelay, func() {
		defer s.kickWG.Done()
		s.logger.Info("running startup fetch cycle")
		s.RunCycle(ctx)
	})

	return nil
}

// RunCycle enqueues one fetch task for every configured source. A failure
// on one source never blocks the others; it is logged and the cycle moves on.
func (s *Scheduler) RunCycle(ctx context.Context) {
	startTime := time.Now()
	enqueued := 0

	for _, src := range s.sources {
		taskID, err := s.queue.Enqueue(ctx, src.Key, src.URL)
		if err != nil {
			s.logger.Error("failed to enqueue fetch task",
				slog.String("source", src.Key),
				slog.String("url", src.URL),
				slog.Any("error", err),
			)
			continue
		}

		enqueued++
		s.logger.Info("fetch task enqueued",
			slog.String("task_id", taskID),
			slog.String("source", src.Key),
		)
	}

	s.logger.Info("fetch cycle completed",
		slog.Int("enqueued", enqueued),
		slog.Int("sources", len(s.sources)),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// Stop halts the cron loop and cancels a pending startup kick. It waits for
// an in-progress cycle to finish before returning, whether the cron or the
// startup kick started it.
func (s *Scheduler) Stop() {
	if s.startupTimer != nil && s.startupTimer.Stop() {
		// Timer canceled before firing; its cycle never runs
		s.kickWG.Done()
	}
	s.kickWG.Wait()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info("scheduler stopped")
}
