package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

type jobConfigDTO struct {
	MaxDepth             int      `json:"maxDepth"`
	MaxPages             int      `json:"maxPages"`
	MaxConcurrentWorkers int      `json:"maxConcurrentWorkers"`
	CrawlDelayMs         int      `json:"crawlDelayMs"`
	RespectRobotsTxt     bool     `json:"respectRobotsTxt"`
	IncludePatterns      []string `json:"includePatterns,omitempty"`
	ExcludePatterns      []string `json:"excludePatterns,omitempty"`
}

func toJobConfigDTO(c crawl.JobConfig) jobConfigDTO {
	return jobConfigDTO{
		MaxDepth:             c.MaxDepth,
		MaxPages:             c.MaxPages,
		MaxConcurrentWorkers: c.MaxConcurrentWorkers,
		CrawlDelayMs:         c.CrawlDelayMs,
		RespectRobotsTxt:     c.RespectRobotsTxt,
		IncludePatterns:      c.IncludePatterns,
		ExcludePatterns:      c.ExcludePatterns,
	}
}

type jobCountersDTO struct {
	Discovered int64 `json:"discovered"`
	Crawled    int64 `json:"crawled"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
}

func toJobCountersDTO(c crawl.JobCounters) jobCountersDTO {
	return jobCountersDTO{
		Discovered: c.Discovered,
		Crawled:    c.Crawled,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
	}
}

type jobDTO struct {
	ID          string          `json:"id"`
	SeedURL     string          `json:"seedUrl"`
	Domain      string          `json:"domain"`
	Status      crawl.JobStatus `json:"status"`
	Config      jobConfigDTO    `json:"config"`
	Counters    jobCountersDTO  `json:"counters"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toJobDTO(j crawl.Job) jobDTO {
	return jobDTO{
		ID:          j.ID.String(),
		SeedURL:     j.SeedURL,
		Domain:      j.Domain,
		Status:      j.Status,
		Config:      toJobConfigDTO(j.Config),
		Counters:    toJobCountersDTO(j.Counters),
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func toJobDTOs(jobs []crawl.Job) []jobDTO {
	out := make([]jobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobDTO(j))
	}
	return out
}

type pageDTO struct {
	ID            string           `json:"id"`
	JobID         string           `json:"jobId"`
	URL           string           `json:"url"`
	NormalizedURL string           `json:"normalizedUrl"`
	Depth         int              `json:"depth"`
	Status        crawl.PageStatus `json:"status"`
	HTTPStatus    int              `json:"httpStatus,omitempty"`
	ContentType   string           `json:"contentType,omitempty"`
	ContentLength int64            `json:"contentLength,omitempty"`
	Title         string           `json:"title,omitempty"`
	Description   string           `json:"description,omitempty"`
	Content       string           `json:"content,omitempty"`
	ArchiveURI    string           `json:"archiveUri,omitempty"`
	LinksFound    int              `json:"linksFound,omitempty"`
	CrawledAt     *time.Time       `json:"crawledAt,omitempty"`
	DurationMs    int64            `json:"durationMs,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	RetryCount    int              `json:"retryCount,omitempty"`
}

func toPageDTO(p crawl.Page) pageDTO {
	return pageDTO{
		ID:            p.ID.String(),
		JobID:         p.JobID.String(),
		URL:           p.URL,
		NormalizedURL: p.NormalizedURL,
		Depth:         p.Depth,
		Status:        p.Status,
		HTTPStatus:    p.HTTPStatus,
		ContentType:   p.ContentType,
		ContentLength: p.ContentLength,
		Title:         p.Title,
		Description:   p.Description,
		Content:       p.Content,
		ArchiveURI:    p.ArchiveURI,
		LinksFound:    p.LinksFound,
		CrawledAt:     p.CrawledAt,
		DurationMs:    p.DurationMs,
		ErrorMessage:  p.ErrorMessage,
		RetryCount:    p.RetryCount,
	}
}

func toPageDTOs(pages []crawl.Page) []pageDTO {
	out := make([]pageDTO, 0, len(pages))
	for _, p := range pages {
		out = append(out, toPageDTO(p))
	}
	return out
}

// parseLimitOffset reads page/limit query params and converts them to a
// store-level limit/offset pair, defaulting and bounding per SPEC_FULL.md §6.
func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 1 || v > maxLimit {
			return 0, 0, fmt.Errorf("limit must be in 1..%d", maxLimit)
		}
		limit = v
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 1 {
			return 0, 0, fmt.Errorf("page must be >= 1")
		}
		offset = (v - 1) * limit
	}
	return limit, offset, nil
}
