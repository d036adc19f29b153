package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

const pageColumns = `
	id, job_id, url, normalized_url, depth, status, http_status, content_type,
	content_length, title, description, content, archive_uri, links_found,
	crawled_at, duration_ms, error_message, retry_count, created_at, updated_at`

func scanPage(row pgx.Row) (crawl.Page, error) {
	var p crawl.Page
	if err := row.Scan(
		&p.ID, &p.JobID, &p.URL, &p.NormalizedURL, &p.Depth, &p.Status, &p.HTTPStatus, &p.ContentType,
		&p.ContentLength, &p.Title, &p.Description, &p.Content, &p.ArchiveURI, &p.LinksFound,
		&p.CrawledAt, &p.DurationMs, &p.ErrorMessage, &p.RetryCount, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return crawl.Page{}, err
	}
	return p, nil
}

// UpsertPage inserts a Page row if one does not already exist for
// (jobID, normalizedURL), returning the existing row otherwise. The second
// return value reports whether a new row was inserted, distinguishing first
// sight from a re-discovery of an already-known URL.
func (s *Store) UpsertPage(ctx context.Context, jobID uuid.UUID, url, normalizedURL string, depth int) (crawl.Page, bool, error) {
	id := uuid.New()
	row := s.db.QueryRow(ctx, `
		INSERT INTO pages (id, job_id, url, normalized_url, depth, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id, normalized_url) DO NOTHING
		RETURNING `+pageColumns,
		id, jobID, url, normalizedURL, depth, string(crawl.PagePending),
	)
	page, err := scanPage(row)
	if err == nil {
		return page, true, nil
	}
	if err != pgx.ErrNoRows {
		return crawl.Page{}, false, fmt.Errorf("upsert page insert: %w", err)
	}

	row = s.db.QueryRow(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 AND normalized_url = $2", jobID, normalizedURL)
	page, err = scanPage(row)
	if err != nil {
		return crawl.Page{}, false, fmt.Errorf("upsert page reselect: %w", err)
	}
	return page, false, nil
}

// UpdatePage applies a partial update to the page identified by
// (jobID, normalizedURL), setting its terminal or intermediate status.
func (s *Store) UpdatePage(ctx context.Context, jobID uuid.UUID, normalizedURL string, status crawl.PageStatus, patch crawl.PagePatch) error {
	_, err := s.db.Exec(ctx, `
		UPDATE pages SET
			status = $3,
			http_status = COALESCE($4, http_status),
			content_type = COALESCE($5, content_type),
			content_length = COALESCE($6, content_length),
			title = COALESCE($7, title),
			description = COALESCE($8, description),
			content = COALESCE($9, content),
			archive_uri = COALESCE($10, archive_uri),
			links_found = COALESCE($11, links_found),
			crawled_at = COALESCE($12, crawled_at),
			duration_ms = COALESCE($13, duration_ms),
			error_message = COALESCE($14, error_message),
			retry_count = COALESCE($15, retry_count),
			updated_at = now()
		WHERE job_id = $1 AND normalized_url = $2`,
		jobID, normalizedURL, string(status),
		patch.HTTPStatus, patch.ContentType, patch.ContentLength, patch.Title, patch.Description,
		patch.Content, patch.ArchiveURI, patch.LinksFound, patch.CrawledAt, patch.DurationMs,
		patch.ErrorMessage, patch.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

// GetPage performs a direct primary-key lookup, not a bounded scan, resolving
// the open question in SPEC_FULL.md §9 in favor of O(1) retrieval.
func (s *Store) GetPage(ctx context.Context, jobID, pageID uuid.UUID) (crawl.Page, error) {
	row := s.db.QueryRow(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 AND id = $2", jobID, pageID)
	page, err := scanPage(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return crawl.Page{}, fmt.Errorf("page %s: %w", pageID, crawl.ErrNotFound)
		}
		return crawl.Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// ListPages returns a page of Pages optionally filtered by status.
func (s *Store) ListPages(ctx context.Context, jobID uuid.UUID, status *crawl.PageStatus, limit, offset int) ([]crawl.Page, int, error) {
	var total int
	var err error
	if status != nil {
		err = s.db.QueryRow(ctx, "SELECT count(*) FROM pages WHERE job_id = $1 AND status = $2", jobID, string(*status)).Scan(&total)
	} else {
		err = s.db.QueryRow(ctx, "SELECT count(*) FROM pages WHERE job_id = $1", jobID).Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("count pages: %w", err)
	}

	var rows pgx.Rows
	if status != nil {
		rows, err = s.db.Query(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT $3 OFFSET $4", jobID, string(*status), limit, offset)
	} else {
		rows, err = s.db.Query(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3", jobID, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []crawl.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, total, rows.Err()
}

// pageIterator streams ExportPages results over an open pgx.Rows, never
// materializing the full result set per §6's streaming requirement.
type pageIterator struct {
	rows pgx.Rows
}

func (it *pageIterator) Next(ctx context.Context) (crawl.Page, bool, error) {
	if !it.rows.Next() {
		return crawl.Page{}, false, it.rows.Err()
	}
	page, err := scanPage(it.rows)
	if err != nil {
		return crawl.Page{}, false, fmt.Errorf("scan exported page: %w", err)
	}
	return page, true, nil
}

func (it *pageIterator) Close() {
	it.rows.Close()
}

// ExportPages opens a server-side cursor-backed stream of every Page for a
// job, optionally filtered by status.
func (s *Store) ExportPages(ctx context.Context, jobID uuid.UUID, status *crawl.PageStatus) (crawl.PageIterator, error) {
	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = s.db.Query(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 AND status = $2 ORDER BY created_at ASC", jobID, string(*status))
	} else {
		rows, err = s.db.Query(ctx, "SELECT "+pageColumns+" FROM pages WHERE job_id = $1 ORDER BY created_at ASC", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("export pages: %w", err)
	}
	return &pageIterator{rows: rows}, nil
}
