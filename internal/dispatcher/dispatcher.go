// Package dispatcher runs the worker loop of one Job: claim, police, pace,
// fetch, persist, discover, retry — fanned out across maxConcurrentWorkers
// goroutines that share one Dispatcher's pause/cancel state.
package dispatcher

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/frontier"
	"github.com/arnegrd/webcrawler/internal/progress"
)

// maxEmptyClaims is how many consecutive empty ClaimPending calls a worker
// tolerates before lengthening its back-off, avoiding a thundering-herd
// poll on the Store once a job's frontier runs dry.
const maxEmptyClaims = 5

const (
	emptyClaimBackoffMin = 250 * time.Millisecond
	emptyClaimBackoffMax = 750 * time.Millisecond
	yieldBackoff          = 2 * time.Second
)

// Deps bundles the Dispatcher's external collaborators.
type Deps struct {
	Store         crawl.Store
	Frontier      *frontier.Frontier
	Robots        crawl.RobotsPolicy
	RateLimiter   crawl.RateLimiter
	Fetcher       crawl.Fetcher
	LinkExtractor crawl.LinkExtractor
	MetaExtractor crawl.MetadataExtractor
	Clock         crawl.Clock
	Logger        *zap.Logger
	// Progress is optional; nil disables event emission entirely.
	Progress progress.Emitter
	// Archiver is optional; nil means bodies exceeding crawl.MaxContentChars
	// are truncated with no off-row copy retained.
	Archiver crawl.BlobArchiver
}

// Dispatcher drives the worker pool for one running Job.
type Dispatcher struct {
	jobID uuid.UUID
	deps  Deps

	mu        sync.Mutex
	cond      *sync.Cond
	paused    atomic.Bool
	cancelled atomic.Bool

	robotsDelayMu   sync.Mutex
	robotsDelaySeen map[string]struct{}
}

// New builds a Dispatcher for jobID. Workers are not started until Run.
func New(jobID uuid.UUID, deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	d := &Dispatcher{jobID: jobID, deps: deps, robotsDelaySeen: make(map[string]struct{})}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Pause parks every worker at its next loop head until Resume or Cancel.
func (d *Dispatcher) Pause() {
	d.paused.Store(true)
}

// Resume releases any parked workers.
func (d *Dispatcher) Resume() {
	d.paused.Store(false)
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Cancel stops every worker at its next cooperative checkpoint.
func (d *Dispatcher) Cancel() {
	d.cancelled.Store(true)
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Run spawns concurrency workers and blocks until they all exit, either
// because ctx was cancelled, the job left the running state, or Cancel was
// called.
func (d *Dispatcher) Run(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	d.bindConfiguredDelay(ctx)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d.workerLoop(ctx, idx)
		}(i)
	}
	wg.Wait()
}

// bindConfiguredDelay seeds the rate limiter's steady-state gap for the
// job's own domain from Config.CrawlDelayMs, before any worker acquires it.
// Other domains discovered mid-crawl (subdomains) pick up their gap lazily
// via applyRobotsDelay, falling back to the limiter's default otherwise.
func (d *Dispatcher) bindConfiguredDelay(ctx context.Context) {
	if d.deps.RateLimiter == nil {
		return
	}
	job, err := d.deps.Store.GetJob(ctx, d.jobID)
	if err != nil {
		d.deps.Logger.Error("dispatcher: load job for rate limit bind failed", zap.Error(err))
		return
	}
	delay := time.Duration(job.Config.CrawlDelayMs) * time.Millisecond
	d.deps.RateLimiter.SetDelay(job.ID, job.Domain, delay)
}

func (d *Dispatcher) workerLoop(ctx context.Context, idx int) {
	emptyClaims := 0
	for {
		if ctx.Err() != nil {
			return
		}

		// Step 1: cooperative cancel/pause checkpoint.
		d.mu.Lock()
		for d.paused.Load() && !d.cancelled.Load() && ctx.Err() == nil {
			d.cond.Wait()
		}
		cancelled := d.cancelled.Load()
		d.mu.Unlock()
		if cancelled || ctx.Err() != nil {
			return
		}

		// Step 2: re-read job; exit if ownership has moved on.
		job, err := d.deps.Store.GetJob(ctx, d.jobID)
		if err != nil {
			d.deps.Logger.Error("dispatcher: reload job failed", zap.Error(err))
			return
		}
		if job.Status != crawl.JobRunning {
			return
		}

		// Step 3: budget check.
		if job.Counters.Crawled >= int64(job.Config.MaxPages) {
			n, err := d.deps.Store.MarkPendingSkipped(ctx, d.jobID)
			if err != nil {
				d.deps.Logger.Error("dispatcher: mark pending skipped failed", zap.Error(err))
			} else if n > 0 {
				if err := d.deps.Store.IncrementCounter(ctx, d.jobID, crawl.CounterSkipped, n); err != nil {
					d.deps.Logger.Error("dispatcher: increment skipped counter failed", zap.Error(err))
				}
			}
			return
		}

		// Step 4: claim one entry, with jittered back-off on an empty queue.
		entries, err := d.deps.Frontier.Claim(ctx, d.jobID, 1)
		if err != nil {
			d.deps.Logger.Error("dispatcher: claim failed", zap.Error(err))
			if !sleepOrDone(ctx, emptyClaimBackoff()) {
				return
			}
			continue
		}
		if len(entries) == 0 {
			emptyClaims++
			backoff := emptyClaimBackoff()
			if emptyClaims >= maxEmptyClaims {
				backoff = yieldBackoff
			}
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}
		emptyClaims = 0

		d.processEntry(ctx, &job, entries[0], idx)
	}
}

func emptyClaimBackoff() time.Duration {
	span := int64(emptyClaimBackoffMax - emptyClaimBackoffMin)
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return emptyClaimBackoffMin
	}
	return emptyClaimBackoffMin + time.Duration(n.Int64())
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) processEntry(ctx context.Context, job *crawl.Job, entry crawl.FrontierEntry, workerIdx int) {
	domain := frontier.HostOf(entry.URL)
	if domain == "" {
		domain = job.Domain
	}
	log := d.deps.Logger.With(zap.String("job_id", job.ID.String()), zap.String("url", entry.URL), zap.Int("worker", workerIdx))

	if job.Config.RespectRobotsTxt && d.deps.Robots != nil {
		allowed, err := d.deps.Robots.IsAllowed(ctx, entry.URL, domain)
		if err != nil {
			log.Warn("robots check failed; allowing", zap.Error(err))
			allowed = true
		}
		if !allowed {
			if err := d.deps.Frontier.Skip(ctx, entry.ID); err != nil {
				log.Error("skip blocked entry failed", zap.Error(err))
			}
			if err := d.deps.Store.IncrementCounter(ctx, job.ID, crawl.CounterSkipped, 1); err != nil {
				log.Error("increment skipped failed", zap.Error(err))
			}
			return
		}
	}

	d.applyRobotsDelay(ctx, job, domain)

	if err := d.deps.RateLimiter.Acquire(ctx, job.ID, domain); err != nil {
		d.requeueWithoutPenalty(entry)
		return
	}

	start := d.deps.Clock.Now()
	resp, err := d.deps.Fetcher.Fetch(ctx, crawl.FetchRequest{URL: entry.URL, Timeout: crawl.DefaultRequestTimeout})
	duration := d.deps.Clock.Now().Sub(start)
	if err != nil {
		d.emitFetchDone(job.ID, domain, entry.URL, 0, duration, 0)
		d.handleFailure(ctx, job, entry, err, 0, log)
		return
	}
	d.emitFetchDone(job.ID, domain, entry.URL, resp.StatusCode, duration, int64(len(resp.Body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		retryAfter := resp.RetryAfter
		if retryAfter <= 0 {
			retryAfter = crawl.Default429ThrottleDuration
		}
		d.deps.RateLimiter.Throttle(job.ID, domain, retryAfter)
		d.handleFailure(ctx, job, entry, fmt.Errorf("status %d: %w", resp.StatusCode, crawl.ErrFetchRetryable), resp.StatusCode, log)
	case resp.StatusCode >= 500:
		d.handleFailure(ctx, job, entry, fmt.Errorf("status %d: %w", resp.StatusCode, crawl.ErrFetchRetryable), resp.StatusCode, log)
	case resp.StatusCode >= 400:
		d.handleFatalFailure(ctx, job, entry, fmt.Errorf("status %d: %w", resp.StatusCode, crawl.ErrFetchFatal), resp.StatusCode, log)
	default:
		d.handleSuccess(ctx, job, entry, resp, duration, log)
	}
}

// applyRobotsDelay sets the rate limiter's steady-state gap for domain from
// the robots.txt Crawl-delay directive, the first time this dispatcher sees
// that domain, when it's larger than the job's configured crawlDelayMs.
func (d *Dispatcher) applyRobotsDelay(ctx context.Context, job *crawl.Job, domain string) {
	if d.deps.RateLimiter == nil || d.deps.Robots == nil || !job.Config.RespectRobotsTxt {
		return
	}
	d.robotsDelayMu.Lock()
	if _, seen := d.robotsDelaySeen[domain]; seen {
		d.robotsDelayMu.Unlock()
		return
	}
	d.robotsDelaySeen[domain] = struct{}{}
	d.robotsDelayMu.Unlock()

	delay, ok, err := d.deps.Robots.CrawlDelay(ctx, domain)
	if err != nil || !ok {
		return
	}
	if configured := time.Duration(job.Config.CrawlDelayMs) * time.Millisecond; delay > configured {
		d.deps.RateLimiter.SetDelay(job.ID, domain, delay)
	}
}

func (d *Dispatcher) emitFetchDone(jobID uuid.UUID, domain, url string, statusCode int, dur time.Duration, bytes int64) {
	if d.deps.Progress == nil {
		return
	}
	d.deps.Progress.Emit(progress.Event{
		JobID:       jobID,
		TS:          time.Now().UTC(),
		Stage:       progress.StageFetchDone,
		Domain:      domain,
		URL:         url,
		Bytes:       bytes,
		Visits:      1,
		StatusClass: progress.ClassifyStatus(statusCode),
		Dur:         dur,
	})
}

// requeueWithoutPenalty resets a claimed entry to pending with no backoff
// and no retry-count increment, used when an in-flight suspension point was
// interrupted by context cancellation rather than a fetch failure.
func (d *Dispatcher) requeueWithoutPenalty(entry crawl.FrontierEntry) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.deps.Frontier.Requeue(cleanupCtx, entry.ID, entry.RetryCount, 0); err != nil {
		d.deps.Logger.Error("dispatcher: requeue on cancel failed", zap.Error(err))
	}
}
