package store

// schema is applied once at startup via EnsureSchema. It is deliberately
// idempotent (CREATE ... IF NOT EXISTS) so a process restart never fails on
// an already-provisioned database.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                      UUID PRIMARY KEY,
	seed_url                TEXT NOT NULL,
	domain                  TEXT NOT NULL,
	max_depth               INT NOT NULL,
	max_pages               INT NOT NULL,
	max_concurrent_workers  INT NOT NULL,
	crawl_delay_ms          INT NOT NULL,
	respect_robots_txt      BOOLEAN NOT NULL,
	include_patterns        TEXT[] NOT NULL DEFAULT '{}',
	exclude_patterns        TEXT[] NOT NULL DEFAULT '{}',
	status                  TEXT NOT NULL,
	discovered              BIGINT NOT NULL DEFAULT 0,
	crawled                 BIGINT NOT NULL DEFAULT 0,
	failed                  BIGINT NOT NULL DEFAULT 0,
	skipped                 BIGINT NOT NULL DEFAULT 0,
	last_error              TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at              TIMESTAMPTZ,
	completed_at            TIMESTAMPTZ,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pages (
	id               UUID PRIMARY KEY,
	job_id           UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	url              TEXT NOT NULL,
	normalized_url   TEXT NOT NULL,
	depth            INT NOT NULL,
	status           TEXT NOT NULL,
	http_status      INT NOT NULL DEFAULT 0,
	content_type     TEXT NOT NULL DEFAULT '',
	content_length   BIGINT NOT NULL DEFAULT 0,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL DEFAULT '',
	archive_uri      TEXT NOT NULL DEFAULT '',
	links_found      INT NOT NULL DEFAULT 0,
	crawled_at       TIMESTAMPTZ,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	retry_count      INT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, normalized_url)
);
CREATE INDEX IF NOT EXISTS idx_pages_job_status ON pages (job_id, status);

CREATE TABLE IF NOT EXISTS frontier_entries (
	id               UUID PRIMARY KEY,
	job_id           UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	page_id          UUID NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	url              TEXT NOT NULL,
	normalized_url   TEXT NOT NULL,
	depth            INT NOT NULL,
	priority         INT NOT NULL,
	retry_count      INT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	not_before       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, normalized_url)
);
CREATE INDEX IF NOT EXISTS idx_frontier_claim
	ON frontier_entries (job_id, status, priority DESC, created_at ASC)
	WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS robots_records (
	domain       TEXT PRIMARY KEY,
	raw_body     TEXT,
	crawl_delay_seconds INT,
	fetched_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);
`
