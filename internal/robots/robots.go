// Package robots implements crawl.RobotsPolicy: a per-domain robots.txt
// cache backed first by memory, then by crawl.Store, falling back to a live
// fetch (https then http) when neither has a fresh copy.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// DefaultCacheTTL is how long a fetched robots.txt stays valid before a
// refetch is attempted.
const DefaultCacheTTL = 24 * time.Hour

// Policy enforces robots.txt per SPEC_FULL.md §4.2: allow on fetch failure,
// https then http, default crawl-delay absent unless the record specifies
// one for the configured user agent.
type Policy struct {
	client    *http.Client
	store     crawl.Store
	userAgent string
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// New builds a Policy. store may be nil, in which case only the in-memory
// cache is used (suitable for tests and the NewWithQuerier store seam).
func New(store crawl.Store, userAgent string, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		client:    &http.Client{Timeout: crawl.DefaultRobotsTimeout},
		store:     store,
		userAgent: userAgent,
		ttl:       DefaultCacheTTL,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether rawURL's path may be fetched under domain's
// robots.txt. Any failure to obtain a policy (network error, malformed
// robots.txt, timeout) allows the fetch, per the spec's allow-on-failure
// default.
func (p *Policy) IsAllowed(ctx context.Context, rawURL, domain string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true, nil
	}
	data, err := p.load(ctx, domain, parsed.Scheme)
	if err != nil {
		p.logger.Warn("robots fetch failed; allowing", zap.String("domain", domain), zap.Error(err))
		return true, nil
	}
	if data == nil {
		return true, nil
	}
	group := data.FindGroup(p.userAgent)
	if group == nil {
		return true, nil
	}
	return group.Test(parsed.Path), nil
}

// CrawlDelay reports the Crawl-delay directive for domain's matched group,
// if any. The second return value is false when the robots.txt specifies
// no delay or could not be loaded.
func (p *Policy) CrawlDelay(ctx context.Context, domain string) (time.Duration, bool, error) {
	data, err := p.load(ctx, domain, "https")
	if err != nil || data == nil {
		return 0, false, nil
	}
	group := data.FindGroup(p.userAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return 0, false, nil
	}
	return group.CrawlDelay, true, nil
}

func (p *Policy) load(ctx context.Context, domain, preferredScheme string) (*robotstxt.RobotsData, error) {
	p.mu.RLock()
	data, ok := p.cache[domain]
	p.mu.RUnlock()
	if ok {
		return data, nil
	}

	if p.store != nil {
		if rec, found, err := p.store.GetRobots(ctx, domain); err == nil && found && time.Now().Before(rec.ExpiresAt) {
			parsed, perr := parseRecord(rec)
			if perr == nil {
				p.mu.Lock()
				p.cache[domain] = parsed
				p.mu.Unlock()
				return parsed, nil
			}
		}
	}

	body, statusCode, err := p.fetch(ctx, domain, preferredScheme)
	if err != nil {
		return nil, err
	}
	data, err = robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for %s: %w", domain, err)
	}

	p.mu.Lock()
	p.cache[domain] = data
	p.mu.Unlock()

	if p.store != nil {
		raw := string(body)
		now := time.Now().UTC()
		rec := crawl.RobotsRecord{
			Domain:    domain,
			RawBody:   &raw,
			FetchedAt: now,
			ExpiresAt: now.Add(p.ttl),
		}
		if group := data.FindGroup(p.userAgent); group != nil && group.CrawlDelay > 0 {
			d := group.CrawlDelay
			rec.CrawlDelay = &d
		}
		if err := p.store.UpsertRobots(ctx, rec); err != nil {
			p.logger.Debug("robots cache persist failed", zap.String("domain", domain), zap.Error(err))
		}
	}

	return data, nil
}

func parseRecord(rec crawl.RobotsRecord) (*robotstxt.RobotsData, error) {
	if rec.RawBody == nil {
		return robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	}
	return robotstxt.FromStatusAndBytes(http.StatusOK, []byte(*rec.RawBody))
}

// fetch tries https first, then http, mirroring browsers' own robots.txt
// resolution order, whatever the scheme of the URL being checked.
func (p *Policy) fetch(ctx context.Context, domain, _ string) ([]byte, int, error) {
	schemes := []string{"https", "http"}

	var lastErr error
	for _, scheme := range schemes {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, strings.ToLower(domain))
		body, status, err := p.fetchOne(ctx, robotsURL)
		if err == nil {
			return body, status, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func (p *Policy) fetchOne(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", robotsURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read robots body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// AllowAll is a no-op RobotsPolicy for jobs configured with
// RespectRobotsTxt=false.
type AllowAll struct{}

func (AllowAll) IsAllowed(context.Context, string, string) (bool, error) { return true, nil }
func (AllowAll) CrawlDelay(context.Context, string) (time.Duration, bool, error) {
	return 0, false, nil
}
