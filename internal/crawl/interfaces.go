package crawl

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional persistence layer described in SPEC_FULL.md §4.1.
// Every method is atomic; none perform application-level read-modify-write
// on counters.
type Store interface {
	CreateJob(ctx context.Context, cfg JobConfig) (Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, int, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, patch JobPatch) error
	IncrementCounter(ctx context.Context, id uuid.UUID, field CounterField, delta int64) error

	UpsertPage(ctx context.Context, jobID uuid.UUID, url, normalizedURL string, depth int) (Page, bool, error)
	UpdatePage(ctx context.Context, jobID uuid.UUID, normalizedURL string, status PageStatus, patch PagePatch) error
	GetPage(ctx context.Context, jobID, pageID uuid.UUID) (Page, error)
	ListPages(ctx context.Context, jobID uuid.UUID, status *PageStatus, limit, offset int) ([]Page, int, error)
	ExportPages(ctx context.Context, jobID uuid.UUID, status *PageStatus) (PageIterator, error)

	EnqueueURLs(ctx context.Context, jobID uuid.UUID, items []EnqueueItem) (int, error)
	ClaimPending(ctx context.Context, jobID uuid.UUID, n int) ([]FrontierEntry, error)
	MarkFrontier(ctx context.Context, entryID uuid.UUID, disposition PageStatus, retryCount *int, notBefore *time.Time) error
	ClearFrontier(ctx context.Context, jobID uuid.UUID) error
	CountPending(ctx context.Context, jobID uuid.UUID) (int64, error)
	QueueStats(ctx context.Context, jobID uuid.UUID) (QueueStats, error)
	MarkPendingSkipped(ctx context.Context, jobID uuid.UUID) (int64, error)

	UpsertRobots(ctx context.Context, record RobotsRecord) error
	GetRobots(ctx context.Context, domain string) (RobotsRecord, bool, error)

	ListRunningJobs(ctx context.Context) ([]Job, error)

	Ping(ctx context.Context) error
	Close()
}

// PageIterator streams pages without materializing the full result set, per
// the ExportPages requirement in §6.
type PageIterator interface {
	Next(ctx context.Context) (Page, bool, error)
	Close()
}

// CounterField names one of a Job's monotonic counters.
type CounterField string

// Recognized counter fields.
const (
	CounterDiscovered CounterField = "discovered"
	CounterCrawled    CounterField = "crawled"
	CounterFailed     CounterField = "failed"
	CounterSkipped    CounterField = "skipped"
)

// JobPatch carries optional field updates for UpdateJobStatus.
type JobPatch struct {
	LastError   *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// PagePatch carries optional field updates for UpdatePage.
type PagePatch struct {
	HTTPStatus    *int
	ContentType   *string
	ContentLength *int64
	Title         *string
	Description   *string
	Content       *string
	ArchiveURI    *string
	LinksFound    *int
	CrawledAt     *time.Time
	DurationMs    *int64
	ErrorMessage  *string
	RetryCount    *int
}

// EnqueueItem is one candidate frontier row for a batch EnqueueURLs call.
type EnqueueItem struct {
	URL           string
	NormalizedURL string
	Depth         int
	Priority      int
}

// RobotsPolicy answers allow/deny and crawl-delay questions for an origin.
// See SPEC_FULL.md §4.2.
type RobotsPolicy interface {
	IsAllowed(ctx context.Context, rawURL, domain string) (bool, error)
	CrawlDelay(ctx context.Context, domain string) (time.Duration, bool, error)
}

// RateLimiter paces requests to one (job, domain) origin. See §4.3.
type RateLimiter interface {
	Acquire(ctx context.Context, jobID uuid.UUID, domain string) error
	Throttle(jobID uuid.UUID, domain string, d time.Duration)
	SetDelay(jobID uuid.UUID, domain string, d time.Duration)
}

// FetchRequest is the input to an external Fetcher.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
}

// FetchResponse is the output of a successful Fetch call.
type FetchResponse struct {
	FinalURL   string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	RetryAfter time.Duration
}

// Fetcher retrieves one URL. Implementations live outside the core per §1;
// the core depends only on this interface.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// PageMetadata is the result of ExtractMetadata.
type PageMetadata struct {
	Title       string
	Description string
	ContentType string
}

// LinkExtractor extracts outbound links from an HTML document.
type LinkExtractor interface {
	ExtractLinks(html []byte, baseURL, domain string) ([]string, error)
}

// MetadataExtractor extracts page metadata from an HTML document.
type MetadataExtractor interface {
	ExtractMetadata(html []byte) (PageMetadata, error)
}

// Clock abstracts time.Now for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers. Its one use is the Control API's
// request IDs; the stores generate job and page IDs themselves.
type IDGenerator interface {
	NewID() uuid.UUID
}

// JobEvent is published on terminal job transitions. Supplemental feature
// per SPEC_FULL.md §3; publishing is best-effort and never blocks a
// transition.
type JobEvent struct {
	JobID     uuid.UUID
	Status    JobStatus
	Counters  JobCounters
	LastError string
	At        time.Time
}

// JobEventPublisher is notified of terminal job transitions.
type JobEventPublisher interface {
	PublishJobEvent(ctx context.Context, evt JobEvent) error
}

// BlobArchiver stores a page body that exceeded the truncation point and
// returns a URI recorded on the Page row. Supplemental feature per §3.
type BlobArchiver interface {
	Archive(ctx context.Context, jobID, pageID uuid.UUID, contentType string, body io.Reader) (uri string, err error)
}
