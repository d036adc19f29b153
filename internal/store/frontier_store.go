package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// EnqueueURLs upserts a Page row and a FrontierEntry row for each item,
// skipping any item whose (jobID, normalizedURL) pair is already queued or
// already resolved. It returns the count of items that were genuinely new
// to the frontier, which the caller (frontier.Discover) uses as the
// discovered-counter delta.
func (s *Store) EnqueueURLs(ctx context.Context, jobID uuid.UUID, items []crawl.EnqueueItem) (int, error) {
	var inserted int
	for _, item := range items {
		pageID := uuid.New()
		var existingPageID uuid.UUID
		var pageStatus string
		err := s.db.QueryRow(ctx, `
			INSERT INTO pages (id, job_id, url, normalized_url, depth, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id, normalized_url) DO UPDATE SET job_id = EXCLUDED.job_id
			RETURNING id, status`,
			pageID, jobID, item.URL, item.NormalizedURL, item.Depth, string(crawl.PagePending),
		).Scan(&existingPageID, &pageStatus)
		if err != nil {
			return inserted, fmt.Errorf("enqueue upsert page: %w", err)
		}
		if pageStatus != string(crawl.PagePending) {
			// Already resolved (completed, failed or skipped): never re-queue.
			continue
		}

		entryID := uuid.New()
		var claimedID uuid.UUID
		err = s.db.QueryRow(ctx, `
			INSERT INTO frontier_entries (id, job_id, page_id, url, normalized_url, depth, priority, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (job_id, normalized_url) DO NOTHING
			RETURNING id`,
			entryID, jobID, existingPageID, item.URL, item.NormalizedURL, item.Depth, item.Priority, string(crawl.FrontierPending),
		).Scan(&claimedID)
		if err != nil {
			if err == pgx.ErrNoRows {
				continue
			}
			return inserted, fmt.Errorf("enqueue insert frontier entry: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

const frontierEntryColumns = `id, job_id, url, normalized_url, depth, priority, retry_count, status, not_before, created_at`

func scanFrontierEntry(row pgx.Row) (crawl.FrontierEntry, error) {
	var e crawl.FrontierEntry
	if err := row.Scan(
		&e.ID, &e.JobID, &e.URL, &e.NormalizedURL, &e.Depth, &e.Priority, &e.RetryCount, &e.Status, &e.NotBefore, &e.CreatedAt,
	); err != nil {
		return crawl.FrontierEntry{}, err
	}
	return e, nil
}

// ClaimPending atomically claims up to n pending, eligible frontier entries
// for a job in priority/age order. The UPDATE ... WHERE id IN (SELECT ...
// FOR UPDATE SKIP LOCKED) shape runs as one statement, so Postgres makes the
// claim atomic without an explicit BEGIN/COMMIT: concurrent workers claiming
// from the same job never see overlapping rows.
func (s *Store) ClaimPending(ctx context.Context, jobID uuid.UUID, n int) ([]crawl.FrontierEntry, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE frontier_entries
		SET status = $3
		WHERE id IN (
			SELECT id FROM frontier_entries
			WHERE job_id = $1 AND status = $4 AND not_before <= now()
			ORDER BY priority DESC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+frontierEntryColumns,
		jobID, n, string(crawl.FrontierClaimed), string(crawl.FrontierPending),
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	var entries []crawl.FrontierEntry
	for rows.Next() {
		entry, err := scanFrontierEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkFrontier resolves a claimed entry. A PagePending disposition means a
// retryable failure: the entry is reset to pending with the given
// not-before deadline so a future ClaimPending can pick it up again. Any
// other disposition is terminal: the Page row is updated and the frontier
// entry is removed, since a resolved entry has no further claim lifecycle.
func (s *Store) MarkFrontier(ctx context.Context, entryID uuid.UUID, disposition crawl.PageStatus, retryCount *int, notBefore *time.Time) error {
	var jobID uuid.UUID
	var normalizedURL string
	err := s.db.QueryRow(ctx, "SELECT job_id, normalized_url FROM frontier_entries WHERE id = $1", entryID).Scan(&jobID, &normalizedURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("frontier entry %s: %w", entryID, crawl.ErrNotFound)
		}
		return fmt.Errorf("mark frontier lookup: %w", err)
	}

	patch := crawl.PagePatch{RetryCount: retryCount}
	if err := s.UpdatePage(ctx, jobID, normalizedURL, disposition, patch); err != nil {
		return fmt.Errorf("mark frontier update page: %w", err)
	}

	if disposition == crawl.PagePending {
		nb := time.Now().UTC()
		if notBefore != nil {
			nb = *notBefore
		}
		rc := 0
		if retryCount != nil {
			rc = *retryCount
		}
		if _, err := s.db.Exec(ctx, "UPDATE frontier_entries SET status = $2, not_before = $3, retry_count = $4 WHERE id = $1",
			entryID, string(crawl.FrontierPending), nb, rc); err != nil {
			return fmt.Errorf("mark frontier requeue: %w", err)
		}
		return nil
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM frontier_entries WHERE id = $1", entryID); err != nil {
		return fmt.Errorf("mark frontier delete: %w", err)
	}
	return nil
}

// ClearFrontier removes every frontier entry for a job, used on cancel.
func (s *Store) ClearFrontier(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.Exec(ctx, "DELETE FROM frontier_entries WHERE job_id = $1", jobID)
	if err != nil {
		return fmt.Errorf("clear frontier: %w", err)
	}
	return nil
}

// CountPending reports how many frontier entries are currently eligible to
// be claimed (pending and past their not-before deadline). The completion
// detector does not use it; it reads QueueStats instead.
func (s *Store) CountPending(ctx context.Context, jobID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, "SELECT count(*) FROM frontier_entries WHERE job_id = $1 AND status = $2 AND not_before <= now()",
		jobID, string(crawl.FrontierPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// QueueStats summarizes both the transient frontier and the resolved Page
// dispositions for a job.
func (s *Store) QueueStats(ctx context.Context, jobID uuid.UUID) (crawl.QueueStats, error) {
	var stats crawl.QueueStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM frontier_entries WHERE job_id = $1 AND status = $2),
			(SELECT count(*) FROM frontier_entries WHERE job_id = $1 AND status = $3),
			(SELECT count(*) FROM pages WHERE job_id = $1 AND status = $4),
			(SELECT count(*) FROM pages WHERE job_id = $1 AND status = $5),
			(SELECT count(*) FROM pages WHERE job_id = $1 AND status = $6)`,
		jobID,
		string(crawl.FrontierPending), string(crawl.FrontierClaimed),
		string(crawl.PageCompleted), string(crawl.PageFailed), string(crawl.PageSkipped),
	).Scan(&stats.Pending, &stats.Claimed, &stats.Completed, &stats.Failed, &stats.Skipped)
	if err != nil {
		return crawl.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// MarkPendingSkipped resolves every still-pending frontier entry for a job
// as skipped, used by the dispatcher once the job's maxPages budget is
// reached. It returns the number of entries resolved.
func (s *Store) MarkPendingSkipped(ctx context.Context, jobID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE pages SET status = $2, updated_at = now()
		WHERE job_id = $1 AND normalized_url IN (
			SELECT normalized_url FROM frontier_entries WHERE job_id = $1 AND status = $3
		)`,
		jobID, string(crawl.PageSkipped), string(crawl.FrontierPending),
	)
	if err != nil {
		return 0, fmt.Errorf("mark pending skipped pages: %w", err)
	}
	n := tag.RowsAffected()

	if _, err := s.db.Exec(ctx, "DELETE FROM frontier_entries WHERE job_id = $1 AND status = $2", jobID, string(crawl.FrontierPending)); err != nil {
		return n, fmt.Errorf("mark pending skipped delete: %w", err)
	}
	return n, nil
}
