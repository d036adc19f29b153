package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// UpsertRobots persists the parsed robots.txt record for a domain,
// overwriting any prior cached copy.
func (s *Store) UpsertRobots(ctx context.Context, record crawl.RobotsRecord) error {
	var delaySeconds any
	if record.CrawlDelay != nil {
		delaySeconds = int(record.CrawlDelay.Seconds())
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO robots_records (domain, raw_body, crawl_delay_seconds, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE SET
			raw_body = EXCLUDED.raw_body,
			crawl_delay_seconds = EXCLUDED.crawl_delay_seconds,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at`,
		record.Domain, record.RawBody, delaySeconds, record.FetchedAt, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert robots: %w", err)
	}
	return nil
}

// GetRobots loads the cached robots.txt record for a domain. The second
// return value is false when no record has ever been cached.
func (s *Store) GetRobots(ctx context.Context, domain string) (crawl.RobotsRecord, bool, error) {
	var rec crawl.RobotsRecord
	var delaySeconds *int
	row := s.db.QueryRow(ctx, "SELECT domain, raw_body, crawl_delay_seconds, fetched_at, expires_at FROM robots_records WHERE domain = $1", domain)
	err := row.Scan(&rec.Domain, &rec.RawBody, &delaySeconds, &rec.FetchedAt, &rec.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return crawl.RobotsRecord{}, false, nil
		}
		return crawl.RobotsRecord{}, false, fmt.Errorf("get robots: %w", err)
	}
	if delaySeconds != nil {
		d := secondsToDuration(*delaySeconds)
		rec.CrawlDelay = &d
	}
	return rec, true, nil
}
