// Package collyfetcher implements crawl.Fetcher using the Colly collector.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Config controls the collector's transport and collection behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawl.Fetcher using the Colly collector. Robots
// enforcement lives entirely in internal/robots; this fetcher always
// performs the GET it's asked for.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

type fetchResult struct {
	resp crawl.FetchResponse
	err  error
}

// Fetch executes a single HTTP GET using a per-call clone of the base
// collector, so concurrent calls never share collector-level state.
func (f *Fetcher) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	collector := f.baseCollector.Clone()
	if req.Timeout > 0 {
		collector.SetRequestTimeout(req.Timeout)
	}

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := map[string][]string{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		retryAfter := parseRetryAfter(headers)
		send(fetchResult{resp: crawl.FetchResponse{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			RetryAfter: retryAfter,
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = fmt.Errorf("colly: unknown fetch error")
		}
		if r != nil && r.StatusCode != 0 {
			headers := map[string][]string{}
			if r.Headers != nil {
				for k, v := range *r.Headers {
					cp := make([]string, len(v))
					copy(cp, v)
					headers[k] = cp
				}
			}
			finalURL := req.URL
			if r.Request != nil && r.Request.URL != nil {
				finalURL = r.Request.URL.String()
			}
			send(fetchResult{resp: crawl.FetchResponse{
				StatusCode: r.StatusCode,
				FinalURL:   finalURL,
				Headers:    headers,
				Body:       append([]byte(nil), r.Body...),
				RetryAfter: parseRetryAfter(headers),
			}, err: err})
			return
		}
		send(fetchResult{err: err})
	})

	visitDone := make(chan error, 1)
	go func() { visitDone <- collector.Visit(req.URL) }()

	select {
	case <-ctx.Done():
		return crawl.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-visitDone:
		if err != nil {
			// Colly reports non-2xx statuses as a Visit error after OnError
			// has already captured the response; return that response.
			select {
			case res := <-resultCh:
				if res.resp.StatusCode != 0 {
					return res.resp, nil
				}
			default:
			}
			return crawl.FetchResponse{}, fmt.Errorf("colly visit: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return crawl.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil && res.resp.StatusCode == 0 {
			return crawl.FetchResponse{}, res.err
		}
		return res.resp, nil
	}
}

func parseRetryAfter(headers map[string][]string) time.Duration {
	values := headers["Retry-After"]
	if len(values) == 0 {
		return 0
	}
	if secs, err := time.ParseDuration(values[0] + "s"); err == nil {
		return secs
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
