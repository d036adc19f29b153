// Package ratelimit implements crawl.RateLimiter: a per-(job, domain) token
// bucket paced by golang.org/x/time/rate, wrapped in a sync.Mutex that
// serializes Acquire calls to the same key, so no two requests to one origin
// are released closer together than the configured gap. Release order among
// blocked callers is the mutex's and is not strictly FIFO: a newly arriving
// goroutine can take the lock ahead of earlier waiters until a waiter has
// been blocked past 1ms, when the mutex switches to starvation mode and
// hands the lock to the longest waiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultBurst is the token bucket burst size when none is configured.
const DefaultBurst = 1

type domainLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	notBefore time.Time
}

// Limiter paces requests per (jobID, domain) origin.
type Limiter struct {
	mu       sync.Mutex
	origins  map[string]*domainLimiter
	defBurst int
}

// New builds a Limiter. Per-origin rates are set lazily via SetDelay (called
// once a job's configured crawl delay or a robots.txt Crawl-delay directive
// is known); origins with no explicit delay default to one request/second.
func New() *Limiter {
	return &Limiter{
		origins:  make(map[string]*domainLimiter),
		defBurst: DefaultBurst,
	}
}

func key(jobID uuid.UUID, domain string) string {
	return jobID.String() + "|" + domain
}

func (l *Limiter) origin(jobID uuid.UUID, domain string) *domainLimiter {
	k := key(jobID, domain)
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.origins[k]
	if !ok {
		o = &domainLimiter{limiter: rate.NewLimiter(rate.Every(time.Second), l.defBurst)}
		l.origins[k] = o
	}
	return o
}

// Acquire blocks until a request to (jobID, domain) may proceed, respecting
// both the steady-state rate and any one-time Throttle deadline in effect.
func (l *Limiter) Acquire(ctx context.Context, jobID uuid.UUID, domain string) error {
	o := l.origin(jobID, domain)
	o.mu.Lock()
	defer o.mu.Unlock()

	if wait := time.Until(o.notBefore); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	return nil
}

// Throttle imposes a one-time additional delay before the next Acquire may
// proceed, used after a 429 response's Retry-After header.
func (l *Limiter) Throttle(jobID uuid.UUID, domain string, d time.Duration) {
	o := l.origin(jobID, domain)
	o.mu.Lock()
	defer o.mu.Unlock()
	deadline := time.Now().Add(d)
	if deadline.After(o.notBefore) {
		o.notBefore = deadline
	}
}

// SetDelay sets the steady-state minimum gap between requests to (jobID,
// domain), replacing any earlier gap. Choosing between the job's configured
// crawl delay and a robots.txt Crawl-delay is left to the caller; a
// non-positive d is ignored.
func (l *Limiter) SetDelay(jobID uuid.UUID, domain string, d time.Duration) {
	if d <= 0 {
		return
	}
	o := l.origin(jobID, domain)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.limiter.SetLimit(rate.Every(d))
}
