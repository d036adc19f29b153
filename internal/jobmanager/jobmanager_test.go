package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/dispatcher"
	"github.com/arnegrd/webcrawler/internal/frontier"
	memstore "github.com/arnegrd/webcrawler/internal/store/memory"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	return crawl.FetchResponse{StatusCode: 200, FinalURL: req.URL, Body: []byte("<html></html>")}, nil
}

type allowAll struct{}

func (allowAll) IsAllowed(context.Context, string, string) (bool, error) { return true, nil }
func (allowAll) CrawlDelay(context.Context, string) (time.Duration, bool, error) {
	return 0, false, nil
}

type noopRateLimiter struct{}

func (noopRateLimiter) Acquire(context.Context, uuid.UUID, string) error { return nil }
func (noopRateLimiter) Throttle(uuid.UUID, string, time.Duration)        {}
func (noopRateLimiter) SetDelay(uuid.UUID, string, time.Duration)        {}

func newTestManager(t *testing.T, store crawl.Store) *Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	factory := func(jobID uuid.UUID) *dispatcher.Dispatcher {
		return dispatcher.New(jobID, dispatcher.Deps{
			Store:       store,
			Frontier:    frontier.New(store),
			Robots:      allowAll{},
			RateLimiter: noopRateLimiter{},
			Fetcher:     stubFetcher{},
			Clock:       systemClock{},
			Logger:      logger,
		})
	}
	return New(store, factory, nil, nil, logger)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func TestManager_CreateJobValidatesConfig(t *testing.T) {
	m := newTestManager(t, memstore.New())
	_, err := m.CreateJob(context.Background(), crawl.JobConfig{SeedURL: ""})
	assert.Error(t, err)
}

func TestManager_StartTransitionsToRunningAndSeedsFrontier(t *testing.T) {
	store := memstore.New()
	m := newTestManager(t, store)
	job, err := m.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background(), job.ID))

	require.Eventually(t, func() bool {
		reloaded, err := store.GetJob(context.Background(), job.ID)
		return err == nil && reloaded.Status == crawl.JobRunning
	}, time.Second, 10*time.Millisecond)
}

func TestManager_PauseThenResume(t *testing.T) {
	store := memstore.New()
	m := newTestManager(t, store)
	job, err := m.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), job.ID))

	require.NoError(t, m.Pause(context.Background(), job.ID))
	reloaded, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobPaused, reloaded.Status)

	require.NoError(t, m.Resume(context.Background(), job.ID))
	reloaded, err = store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobRunning, reloaded.Status)
}

func TestManager_CancelClearsFrontierAndStops(t *testing.T) {
	store := memstore.New()
	m := newTestManager(t, store)
	job, err := m.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 100, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), job.ID))

	require.NoError(t, m.Cancel(context.Background(), job.ID))
	reloaded, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobCancelled, reloaded.Status)

	stats, err := m.frontier.Stats(context.Background(), job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Pending)
}

func TestManager_RecoverRebindsRunningJobs(t *testing.T) {
	store := memstore.New()
	job, err := store.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, store.UpdateJobStatus(context.Background(), job.ID, crawl.JobRunning, crawl.JobPatch{StartedAt: &now}))
	require.NoError(t, frontier.New(store).Seed(context.Background(), job.ID, job.SeedURL))

	m := newTestManager(t, store)
	require.NoError(t, m.Recover(context.Background()))

	m.mu.Lock()
	_, bound := m.running[job.ID]
	m.mu.Unlock()
	assert.True(t, bound, "recover must rebind a dispatcher to every running job")
}

func TestTerminalConditionHolds_TrueOnEmptyFrontier(t *testing.T) {
	store := memstore.New()
	m := newTestManager(t, store)
	job, err := m.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 10, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)

	holds, err := m.terminalConditionHolds(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, holds, "a job with an empty frontier and no pages crawled yet still satisfies pending=0,claimed=0")
}

func TestCommitCompletion_FailsWhenNothingCrawled(t *testing.T) {
	store := memstore.New()
	m := newTestManager(t, store)
	job, err := m.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 10, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	require.NoError(t, store.IncrementCounter(context.Background(), job.ID, crawl.CounterFailed, 1))
	job, err = store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)

	require.NoError(t, m.commitCompletion(context.Background(), job))

	reloaded, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobFailed, reloaded.Status)
}
