package frontier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Frontier is a thin facade over crawl.Store implementing Seed, Discover,
// Claim, Complete, Fail, and Skip per SPEC_FULL.md §4.4. It holds no state
// of its own beyond a reference to the Store; normalization and filtering
// happen here, persistence happens in Store.
type Frontier struct {
	store crawl.Store
}

// New builds a Frontier over the given Store.
func New(store crawl.Store) *Frontier {
	return &Frontier{store: store}
}

// Seed normalizes the seed URL, upserts its Page at depth 0, and enqueues it.
func (f *Frontier) Seed(ctx context.Context, jobID uuid.UUID, seedURL string) error {
	norm := NormalizeURL(seedURL)
	if _, _, err := f.store.UpsertPage(ctx, jobID, seedURL, norm, 0); err != nil {
		return fmt.Errorf("seed upsert page: %w", err)
	}
	n, err := f.store.EnqueueURLs(ctx, jobID, []crawl.EnqueueItem{{
		URL:           seedURL,
		NormalizedURL: norm,
		Depth:         0,
		Priority:      crawl.Priority(0),
	}})
	if err != nil {
		return fmt.Errorf("seed enqueue: %w", err)
	}
	if n > 0 {
		if err := f.store.IncrementCounter(ctx, jobID, crawl.CounterDiscovered, int64(n)); err != nil {
			return fmt.Errorf("seed increment discovered: %w", err)
		}
	}
	return nil
}

// Discover filters, normalizes, and batch-enqueues a page's outbound links.
// It returns the number of genuinely new URLs (the discovered delta) and
// increments the job's discovered counter by that amount. It applies the
// depth gate itself: when parentDepth >= job.Config.MaxDepth it enqueues
// nothing and returns 0.
func (f *Frontier) Discover(ctx context.Context, job *crawl.Job, parentDepth int, links []string) (int, error) {
	if parentDepth >= job.Config.MaxDepth {
		return 0, nil
	}
	childDepth := parentDepth + 1
	priority := crawl.Priority(childDepth)

	seen := make(map[string]struct{}, len(links))
	items := make([]crawl.EnqueueItem, 0, len(links))
	for _, link := range links {
		host := HostOf(link)
		if host == "" || !InDomain(host, job.Domain) {
			continue
		}
		if !PassesFilters(link, job.IncludeRe, job.ExcludeRe) {
			continue
		}
		norm := NormalizeURL(link)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		items = append(items, crawl.EnqueueItem{
			URL:           link,
			NormalizedURL: norm,
			Depth:         childDepth,
			Priority:      priority,
		})
	}
	if len(items) == 0 {
		return 0, nil
	}

	inserted, err := f.store.EnqueueURLs(ctx, job.ID, items)
	if err != nil {
		return 0, fmt.Errorf("discover enqueue: %w", err)
	}
	if inserted > 0 {
		if err := f.store.IncrementCounter(ctx, job.ID, crawl.CounterDiscovered, int64(inserted)); err != nil {
			return inserted, fmt.Errorf("discover increment discovered: %w", err)
		}
	}
	return inserted, nil
}

// Claim wraps Store.ClaimPending.
func (f *Frontier) Claim(ctx context.Context, jobID uuid.UUID, batchSize int) ([]crawl.FrontierEntry, error) {
	entries, err := f.store.ClaimPending(ctx, jobID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	return entries, nil
}

// Complete marks an entry's page completed.
func (f *Frontier) Complete(ctx context.Context, entryID uuid.UUID) error {
	return f.store.MarkFrontier(ctx, entryID, crawl.PageCompleted, nil, nil)
}

// Skip marks an entry's page skipped (policy-blocked or budget-exhausted).
func (f *Frontier) Skip(ctx context.Context, entryID uuid.UUID) error {
	return f.store.MarkFrontier(ctx, entryID, crawl.PageSkipped, nil, nil)
}

// Fail marks an entry's page failed, recording the attempt count. notBefore
// is used by the retry path (via Requeue) rather than here.
func (f *Frontier) Fail(ctx context.Context, entryID uuid.UUID, attempts int) error {
	return f.store.MarkFrontier(ctx, entryID, crawl.PageFailed, &attempts, nil)
}

// Requeue re-enqueues a claimed entry as pending with a notBefore deadline,
// implementing the retry back-off of §4.5 step 10.
func (f *Frontier) Requeue(ctx context.Context, entryID uuid.UUID, retryCount int, backoff time.Duration) error {
	notBefore := time.Now().Add(backoff)
	return f.store.MarkFrontier(ctx, entryID, crawl.PagePending, &retryCount, &notBefore)
}

// Clear removes all frontier entries for a job (on cancel or delete).
func (f *Frontier) Clear(ctx context.Context, jobID uuid.UUID) error {
	return f.store.ClearFrontier(ctx, jobID)
}

// Stats returns the frontier's queue stats for a job.
func (f *Frontier) Stats(ctx context.Context, jobID uuid.UUID) (crawl.QueueStats, error) {
	return f.store.QueueStats(ctx, jobID)
}
