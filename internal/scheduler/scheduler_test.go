package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangbt/jobpulse/internal/config"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	sources []string
	failFor map[string]error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, source, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[source]; ok {
		return "", err
	}
	f.sources = append(f.sources, source)
	return "task-" + source, nil
}

func (f *fakeEnqueuer) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

func testSources() []config.SourceConfig {
	return []config.SourceConfig{
		{Key: "jobicy_all", URL: "https://jobicy.com/feed"},
		{Key: "jobicy_design", URL: "https://jobicy.com/feed/design"},
		{Key: "weworkremotely_programming", URL: "https://weworkremotely.com/categories/remote-programming-jobs.rss"},
	}
}

func newTestScheduler(q Enqueuer, startupDelay time.Duration) *Scheduler {
	return NewScheduler(&Config{
		Logger:       slog.New(slog.DiscardHandler),
		Queue:        q,
		Sources:      testSources(),
		CronSpec:     "0 * * * *",
		StartupDelay: startupDelay,
	})
}

func TestRunCycleEnqueuesEverySource(t *testing.T) {
	q := &fakeEnqueuer{}
	s := newTestScheduler(q, time.Hour)

	s.RunCycle(context.Background())

	assert.Equal(t, []string{"jobicy_all", "jobicy_design", "weworkremotely_programming"}, q.enqueued())
}

func TestRunCycleFailureDoesNotBlockOtherSources(t *testing.T) {
	q := &fakeEnqueuer{failFor: map[string]error{
		"jobicy_design": errors.New("broker unavailable"),
	}}
	s := newTestScheduler(q, time.Hour)

	s.RunCycle(context.Background())

	// The middle source failed; the ones before and after still went out
	assert.Equal(t, []string{"jobicy_all", "weworkremotely_programming"}, q.enqueued())
}

func TestStartFiresStartupKick(t *testing.T) {
	q := &fakeEnqueuer{}
	s := newTestScheduler(q, 20*time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return len(q.enqueued()) == len(testSources())
	}, time.Second, 10*time.Millisecond)
}

type slowEnqueuer struct {
	fakeEnqueuer
	started chan struct{}
	once    sync.Once
	delay   time.Duration
}

func (s *slowEnqueuer) Enqueue(ctx context.Context, source, url string) (string, error) {
	s.once.Do(func() { close(s.started) })
	time.Sleep(s.delay)
	return s.fakeEnqueuer.Enqueue(ctx, source, url)
}

func TestStopWaitsForRunningStartupKick(t *testing.T) {
	q := &slowEnqueuer{started: make(chan struct{}), delay: 20 * time.Millisecond}
	s := NewScheduler(&Config{
		Logger:       slog.New(slog.DiscardHandler),
		Queue:        q,
		Sources:      testSources(),
		CronSpec:     "0 * * * *",
		StartupDelay: time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("startup cycle never began")
	}

	// Stop must block until the cycle that is already running finishes,
	// so every source has been enqueued by the time it returns
	s.Stop()
	assert.Len(t, q.enqueued(), len(testSources()))
}

func TestStopCancelsPendingStartupKick(t *testing.T) {
	q := &fakeEnqueuer{}
	s := newTestScheduler(q, time.Hour)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, q.enqueued())
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	s := NewScheduler(&Config{
		Logger:   slog.New(slog.DiscardHandler),
		Queue:    &fakeEnqueuer{},
		Sources:  testSources(),
		CronSpec: "not a cron spec",
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron entry")
}
