// Package main hosts the crawl service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes job lifecycle endpoints
//     (create/cancel/pause/resume), page listing/export, and health/metrics.
//   - Job lifecycle: internal/jobmanager drives the pending/running/paused/
//     terminal state machine and binds one internal/dispatcher worker pool
//     per running job.
//   - Fetch pipeline: dispatcher workers claim frontier entries, check
//     robots.txt and rate limits, fetch via either the colly-based probe
//     fetcher or an optional chromedp headless fetcher, extract links and
//     metadata, and persist the result.
//   - Persistence: internal/store (Postgres) or internal/store/memory holds
//     jobs, pages, and the frontier; internal/blobstore/gcs or its in-memory
//     fallback archives page bodies that exceed the inline truncation point.
//   - Configuration & plumbing: viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     telemetry middleware and /metrics handler.
//
// Run locally: go run ./cmd/webcrawler -config config.yaml (or rely solely
// on CRAWLER_-prefixed env overrides).
package main
