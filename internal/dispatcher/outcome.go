package dispatcher

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

func backoffFor(attempt int) time.Duration {
	return 2 * time.Second * time.Duration(uint64(1)<<uint(attempt-1))
}

// responseContentType reads Content-Type off the raw fetch response headers,
// since PageMetadata's ContentType (sniffed from the document itself) isn't
// available until after extraction runs.
func responseContentType(resp crawl.FetchResponse) string {
	for k, v := range resp.Headers {
		if len(v) > 0 && (k == "Content-Type" || k == "content-type") {
			return v[0]
		}
	}
	return ""
}

func (d *Dispatcher) handleSuccess(ctx context.Context, job *crawl.Job, entry crawl.FrontierEntry, resp crawl.FetchResponse, duration time.Duration, log *zap.Logger) {
	body := resp.Body
	content := string(body)
	var archiveURI string
	if len(content) > crawl.MaxContentChars {
		content = content[:crawl.MaxContentChars]
		if d.deps.Archiver != nil {
			uri, err := d.deps.Archiver.Archive(ctx, job.ID, entry.ID, responseContentType(resp), bytes.NewReader(body))
			if err != nil {
				log.Warn("archive oversized page body failed", zap.Error(err))
			} else {
				archiveURI = uri
			}
		}
	}

	var meta crawl.PageMetadata
	if d.deps.MetaExtractor != nil {
		if m, err := d.deps.MetaExtractor.ExtractMetadata(body); err != nil {
			log.Debug("metadata extraction failed", zap.Error(err))
		} else {
			meta = m
		}
	}

	var links []string
	if d.deps.LinkExtractor != nil {
		baseURL := resp.FinalURL
		if baseURL == "" {
			baseURL = entry.URL
		}
		extracted, err := d.deps.LinkExtractor.ExtractLinks(body, baseURL, job.Domain)
		if err != nil {
			log.Debug("link extraction failed", zap.Error(err))
		} else {
			links = extracted
		}
	}

	now := d.deps.Clock.Now()
	httpStatus := resp.StatusCode
	contentLength := int64(len(body))
	linksFound := len(links)
	durationMs := duration.Milliseconds()
	patch := crawl.PagePatch{
		HTTPStatus:    &httpStatus,
		ContentType:   &meta.ContentType,
		ContentLength: &contentLength,
		Title:         &meta.Title,
		Description:   &meta.Description,
		Content:       &content,
		LinksFound:    &linksFound,
		CrawledAt:     &now,
		DurationMs:    &durationMs,
	}
	if archiveURI != "" {
		patch.ArchiveURI = &archiveURI
	}
	if err := d.deps.Store.UpdatePage(ctx, job.ID, entry.NormalizedURL, crawl.PageCompleted, patch); err != nil {
		log.Error("persist completed page failed", zap.Error(err))
	}

	if len(links) > 0 {
		if _, err := d.deps.Frontier.Discover(ctx, job, entry.Depth, links); err != nil {
			log.Error("discover links failed", zap.Error(err))
		}
	}

	if err := d.deps.Frontier.Complete(ctx, entry.ID); err != nil {
		log.Error("complete entry failed", zap.Error(err))
	}
	if err := d.deps.Store.IncrementCounter(ctx, job.ID, crawl.CounterCrawled, 1); err != nil {
		log.Error("increment crawled failed", zap.Error(err))
	}
}

// handleFailure implements §4.5 step 10 for crawl.ErrFetchRetryable causes
// (network errors, 5xx, 429/503): retry with exponential back-off up to
// crawl.DefaultMaxRetries attempts, then a terminal failed disposition.
func (d *Dispatcher) handleFailure(ctx context.Context, job *crawl.Job, entry crawl.FrontierEntry, cause error, httpStatus int, log *zap.Logger) {
	log.Warn("fetch failed", zap.Error(cause), zap.Int("retry_count", entry.RetryCount))
	retryCount := entry.RetryCount + 1

	if retryCount < crawl.DefaultMaxRetries {
		backoff := backoffFor(retryCount)
		if err := d.deps.Frontier.Requeue(ctx, entry.ID, retryCount, backoff); err != nil {
			log.Error("requeue retry failed", zap.Error(err))
		}
		return
	}

	d.finalizeFailed(ctx, job, entry, cause, httpStatus, retryCount, log)
}

// handleFatalFailure implements §4.5/§7 for crawl.ErrFetchFatal causes (any
// 4xx other than 429): fails the entry immediately, with no retry, since a
// non-retryable client error will never resolve on its own.
func (d *Dispatcher) handleFatalFailure(ctx context.Context, job *crawl.Job, entry crawl.FrontierEntry, cause error, httpStatus int, log *zap.Logger) {
	log.Warn("fetch failed fatally; no retry", zap.Error(cause))
	d.finalizeFailed(ctx, job, entry, cause, httpStatus, entry.RetryCount+1, log)
}

func (d *Dispatcher) finalizeFailed(ctx context.Context, job *crawl.Job, entry crawl.FrontierEntry, cause error, httpStatus, retryCount int, log *zap.Logger) {
	if err := d.deps.Frontier.Fail(ctx, entry.ID, retryCount); err != nil {
		log.Error("mark failed entry failed", zap.Error(err))
	}

	msg := cause.Error()
	patch := crawl.PagePatch{ErrorMessage: &msg}
	if httpStatus > 0 {
		patch.HTTPStatus = &httpStatus
	}
	if err := d.deps.Store.UpdatePage(ctx, job.ID, entry.NormalizedURL, crawl.PageFailed, patch); err != nil {
		log.Error("persist failed page error message failed", zap.Error(err))
	}
	if err := d.deps.Store.IncrementCounter(ctx, job.ID, crawl.CounterFailed, 1); err != nil {
		log.Error("increment failed counter failed", zap.Error(err))
	}
}
