// Package memory implements crawl.Store entirely in process memory. It
// backs unit tests for the dispatcher and job manager and doubles as a
// zero-dependency mode for local development, mirroring the reference
// lineage's development-mode job store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Store is a mutex-guarded in-memory crawl.Store.
type Store struct {
	mu       sync.RWMutex
	jobs     map[uuid.UUID]*crawl.Job
	pages    map[uuid.UUID]map[string]*crawl.Page // jobID -> normalizedURL -> page
	frontier map[uuid.UUID]map[uuid.UUID]*crawl.FrontierEntry
	urlIndex map[uuid.UUID]map[string]uuid.UUID // jobID -> normalizedURL -> frontier entry ID
	robots   map[string]crawl.RobotsRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[uuid.UUID]*crawl.Job),
		pages:    make(map[uuid.UUID]map[string]*crawl.Page),
		frontier: make(map[uuid.UUID]map[uuid.UUID]*crawl.FrontierEntry),
		urlIndex: make(map[uuid.UUID]map[string]uuid.UUID),
		robots:   make(map[string]crawl.RobotsRecord),
	}
}

func cloneJob(j *crawl.Job) crawl.Job {
	out := *j
	out.Config.IncludePatterns = append([]string(nil), j.Config.IncludePatterns...)
	out.Config.ExcludePatterns = append([]string(nil), j.Config.ExcludePatterns...)
	_ = out.CompileFilters()
	return out
}

func (s *Store) CreateJob(ctx context.Context, cfg crawl.JobConfig) (crawl.Job, error) {
	domain, err := hostOf(cfg.SeedURL)
	if err != nil {
		return crawl.Job{}, err
	}
	now := time.Now().UTC()
	job := &crawl.Job{
		ID:        uuid.New(),
		SeedURL:   cfg.SeedURL,
		Domain:    domain,
		Config:    cfg,
		Status:    crawl.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := job.CompileFilters(); err != nil {
		return crawl.Job{}, err
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.pages[job.ID] = make(map[string]*crawl.Page)
	s.frontier[job.ID] = make(map[uuid.UUID]*crawl.FrontierEntry)
	s.urlIndex[job.ID] = make(map[string]uuid.UUID)
	s.mu.Unlock()
	return cloneJob(job), nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (crawl.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return crawl.Job{}, fmt.Errorf("job %s: %w", id, crawl.ErrNotFound)
	}
	return cloneJob(job), nil
}

func (s *Store) ListJobs(ctx context.Context, status *crawl.JobStatus, limit, offset int) ([]crawl.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []crawl.Job
	for _, j := range s.jobs {
		if status != nil && j.Status != *status {
			continue
		}
		all = append(all, cloneJob(j))
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *Store) ListRunningJobs(ctx context.Context) ([]crawl.Job, error) {
	running := crawl.JobRunning
	jobs, _, err := s.ListJobs(ctx, &running, 0, 0)
	return jobs, err
}

func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status crawl.JobStatus, patch crawl.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, crawl.ErrNotFound)
	}
	job.Status = status
	if patch.LastError != nil {
		job.LastError = *patch.LastError
	}
	if patch.StartedAt != nil {
		job.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) IncrementCounter(ctx context.Context, id uuid.UUID, field crawl.CounterField, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, crawl.ErrNotFound)
	}
	switch field {
	case crawl.CounterDiscovered:
		job.Counters.Discovered += delta
	case crawl.CounterCrawled:
		job.Counters.Crawled += delta
	case crawl.CounterFailed:
		job.Counters.Failed += delta
	case crawl.CounterSkipped:
		job.Counters.Skipped += delta
	default:
		return fmt.Errorf("unknown counter field %q", field)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

func hostOf(rawURL string) (string, error) {
	u, err := parseHost(rawURL)
	if err != nil {
		return "", err
	}
	return u, nil
}
