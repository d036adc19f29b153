package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// CreateJob inserts a new job row in the pending state.
func (s *Store) CreateJob(ctx context.Context, cfg crawl.JobConfig) (crawl.Job, error) {
	domain, err := domainOf(cfg.SeedURL)
	if err != nil {
		return crawl.Job{}, fmt.Errorf("derive domain: %w", err)
	}
	id := uuid.New()
	now := time.Now().UTC()

	const q = `
		INSERT INTO jobs (
			id, seed_url, domain, max_depth, max_pages, max_concurrent_workers,
			crawl_delay_ms, respect_robots_txt, include_patterns, exclude_patterns,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.db.Exec(ctx, q,
		id, cfg.SeedURL, domain, cfg.MaxDepth, cfg.MaxPages, cfg.MaxConcurrentWorkers,
		cfg.CrawlDelayMs, cfg.RespectRobotsTxt, cfg.IncludePatterns, cfg.ExcludePatterns,
		string(crawl.JobPending), now, now,
	)
	if err != nil {
		return crawl.Job{}, fmt.Errorf("insert job: %w", err)
	}

	job := crawl.Job{
		ID:        id,
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
	return job, nil
}

const jobColumns = `
	id, seed_url, domain, max_depth, max_pages, max_concurrent_workers,
	crawl_delay_ms, respect_robots_txt, include_patterns, exclude_patterns,
	status, discovered, crawled, failed, skipped, last_error,
	created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (crawl.Job, error) {
	var j crawl.Job
	var includePatterns, excludePatterns []string
	if err := row.Scan(
		&j.ID, &j.SeedURL, &j.Domain, &j.Config.MaxDepth, &j.Config.MaxPages, &j.Config.MaxConcurrentWorkers,
		&j.Config.CrawlDelayMs, &j.Config.RespectRobotsTxt, &includePatterns, &excludePatterns,
		&j.Status, &j.Counters.Discovered, &j.Counters.Crawled, &j.Counters.Failed, &j.Counters.Skipped, &j.LastError,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	); err != nil {
		return crawl.Job{}, err
	}
	j.Config.SeedURL = j.SeedURL
	j.Config.IncludePatterns = includePatterns
	j.Config.ExcludePatterns = excludePatterns
	if err := j.CompileFilters(); err != nil {
		return crawl.Job{}, err
	}
	return j, nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (crawl.Job, error) {
	row := s.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return crawl.Job{}, fmt.Errorf("job %s: %w", id, crawl.ErrNotFound)
		}
		return crawl.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns a page of jobs optionally filtered by status, plus total count.
func (s *Store) ListJobs(ctx context.Context, status *crawl.JobStatus, limit, offset int) ([]crawl.Job, int, error) {
	var rows pgx.Rows
	var err error
	var total int

	if status != nil {
		err = s.db.QueryRow(ctx, "SELECT count(*) FROM jobs WHERE status = $1", string(*status)).Scan(&total)
	} else {
		err = s.db.QueryRow(ctx, "SELECT count(*) FROM jobs").Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	if status != nil {
		rows, err = s.db.Query(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", string(*status), limit, offset)
	} else {
		rows, err = s.db.Query(ctx, "SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawl.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// ListRunningJobs returns every job currently in the running state, used by
// JobManager's startup recovery pass.
func (s *Store) ListRunningJobs(ctx context.Context) ([]crawl.Job, error) {
	rows, err := s.db.Query(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = $1", string(crawl.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawl.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job's status and applies an optional patch.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status crawl.JobStatus, patch crawl.JobPatch) error {
	_, err := s.db.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			last_error = COALESCE($3, last_error),
			started_at = COALESCE($4, started_at),
			completed_at = COALESCE($5, completed_at),
			updated_at = now()
		WHERE id = $1`,
		id, string(status), patch.LastError, patch.StartedAt, patch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// IncrementCounter applies an atomic SQL increment; never read-modify-write.
func (s *Store) IncrementCounter(ctx context.Context, id uuid.UUID, field crawl.CounterField, delta int64) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf("UPDATE jobs SET %s = %s + $2, updated_at = now() WHERE id = $1", col, col), id, delta)
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", field, err)
	}
	return nil
}

func counterColumn(field crawl.CounterField) (string, error) {
	switch field {
	case crawl.CounterDiscovered:
		return "discovered", nil
	case crawl.CounterCrawled:
		return "crawled", nil
	case crawl.CounterFailed:
		return "failed", nil
	case crawl.CounterSkipped:
		return "skipped", nil
	default:
		return "", fmt.Errorf("unknown counter field %q", field)
	}
}
