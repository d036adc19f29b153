// Package crawl defines the vocabulary shared by every component of the
// crawl engine: job/page/frontier/robots records and the narrow interfaces
// components program against instead of each other's concrete types.
package crawl

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// JobStatus is a Job's position in the lifecycle state machine.
type JobStatus string

// Recognized job statuses.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status never transitions further.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// PageStatus is a Page's position in its own smaller lifecycle.
type PageStatus string

// Recognized page statuses.
const (
	PagePending   PageStatus = "pending"
	PageClaimed   PageStatus = "claimed"
	PageCompleted PageStatus = "completed"
	PageFailed    PageStatus = "failed"
	PageSkipped   PageStatus = "skipped"
)

// FrontierStatus mirrors PageStatus for the transient work-queue table but
// collapses the terminal cases: once an entry leaves pending/claimed it is
// simply gone (Store.MarkFrontier records the terminal disposition on the
// Page row, not on the FrontierEntry).
type FrontierStatus string

// Recognized frontier statuses.
const (
	FrontierPending FrontierStatus = "pending"
	FrontierClaimed FrontierStatus = "claimed"
)

// JobConfig captures the immutable configuration supplied at CreateJob time.
type JobConfig struct {
	SeedURL              string
	MaxDepth             int
	MaxPages             int
	MaxConcurrentWorkers int
	CrawlDelayMs         int
	RespectRobotsTxt     bool
	IncludePatterns      []string
	ExcludePatterns      []string
}

// Defaults for optional JobConfig fields, per SPEC_FULL.md §6.
const (
	DefaultMaxDepth             = 10
	DefaultMaxPages             = 100_000
	DefaultMaxConcurrentWorkers = 10
	DefaultCrawlDelayMs         = 1000
	MaxContentChars             = 50_000
	DefaultMaxRetries           = 3
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRobotsTimeout        = 10 * time.Second
	CompletionDetectorInterval  = 10 * time.Second
	Default429ThrottleDuration  = 60 * time.Second
)

// ApplyDefaults fills zero-valued MaxDepth, MaxPages, MaxConcurrentWorkers
// and CrawlDelayMs with their defaults. It does not validate ranges (see
// Validate) and leaves SeedURL and the pattern lists untouched.
func (c *JobConfig) ApplyDefaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxConcurrentWorkers == 0 {
		c.MaxConcurrentWorkers = DefaultMaxConcurrentWorkers
	}
	if c.CrawlDelayMs == 0 {
		c.CrawlDelayMs = DefaultCrawlDelayMs
	}
}

// Validate checks the ranges from SPEC_FULL.md §6. Call after ApplyDefaults.
func (c JobConfig) Validate() error {
	switch {
	case c.SeedURL == "":
		return errValidation("seedURL is required")
	case c.MaxDepth < 1 || c.MaxDepth > 50:
		return errValidation("maxDepth must be in 1..50")
	case c.MaxPages < 1 || c.MaxPages > 150_000:
		return errValidation("maxPages must be in 1..150000")
	case c.MaxConcurrentWorkers < 1 || c.MaxConcurrentWorkers > 50:
		return errValidation("maxConcurrentWorkers must be in 1..50")
	case c.CrawlDelayMs < 100 || c.CrawlDelayMs > 10_000:
		return errValidation("crawlDelayMs must be in 100..10000")
	}
	for _, p := range c.IncludePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errValidationf("invalid includePattern %q: %v", p, err)
		}
	}
	for _, p := range c.ExcludePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errValidationf("invalid excludePattern %q: %v", p, err)
		}
	}
	return nil
}

// JobCounters tracks the monotonic progress counters of a Job.
type JobCounters struct {
	Discovered int64
	Crawled    int64
	Failed     int64
	Skipped    int64
}

// Job is the durable record of one crawl run.
type Job struct {
	ID          uuid.UUID
	SeedURL     string
	Domain      string
	Config      JobConfig
	Status      JobStatus
	Counters    JobCounters
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time

	// IncludeRe/ExcludeRe are compiled once at creation (§9: "regex
	// compilation... should be done once per job and cached") and are not
	// persisted; they are rebuilt from Config.{Include,Exclude}Patterns
	// whenever a Job is loaded into a running process.
	IncludeRe []*regexp.Regexp
	ExcludeRe []*regexp.Regexp
}

// CompileFilters builds IncludeRe/ExcludeRe from the config's pattern lists.
func (j *Job) CompileFilters() error {
	j.IncludeRe = make([]*regexp.Regexp, 0, len(j.Config.IncludePatterns))
	for _, p := range j.Config.IncludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return errValidationf("invalid includePattern %q: %v", p, err)
		}
		j.IncludeRe = append(j.IncludeRe, re)
	}
	j.ExcludeRe = make([]*regexp.Regexp, 0, len(j.Config.ExcludePatterns))
	for _, p := range j.Config.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return errValidationf("invalid excludePattern %q: %v", p, err)
		}
		j.ExcludeRe = append(j.ExcludeRe, re)
	}
	return nil
}

// Page is a durable record of one discovered (and possibly fetched) URL.
type Page struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	URL           string
	NormalizedURL string
	Depth         int
	Status        PageStatus
	HTTPStatus    int
	ContentType   string
	ContentLength int64
	Title         string
	Description   string
	Content       string
	ArchiveURI    string
	LinksFound    int
	CrawledAt     *time.Time
	DurationMs    int64
	ErrorMessage  string
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FrontierEntry is a transient work item: an as-yet-unresolved claim on a Page.
type FrontierEntry struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	URL           string
	NormalizedURL string
	Depth         int
	Priority      int
	RetryCount    int
	Status        FrontierStatus
	NotBefore     time.Time
	CreatedAt     time.Time
}

// Priority assigns higher priority to shallower pages: 10 - min(depth, 9).
func Priority(depth int) int {
	if depth > 9 {
		depth = 9
	}
	return 10 - depth
}

// RobotsRecord is the cached, parsed robots.txt for one domain.
type RobotsRecord struct {
	Domain     string
	RawBody    *string
	CrawlDelay *time.Duration
	FetchedAt  time.Time
	ExpiresAt  time.Time
}

// QueueStats summarizes the frontier's state for a job.
type QueueStats struct {
	Pending   int64
	Claimed   int64
	Completed int64
	Failed    int64
	Skipped   int64
}
