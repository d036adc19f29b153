package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arnegrd/webcrawler/internal/config"
	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/dispatcher"
	"github.com/arnegrd/webcrawler/internal/frontier"
	"github.com/arnegrd/webcrawler/internal/idgen"
	"github.com/arnegrd/webcrawler/internal/jobmanager"
	memstore "github.com/arnegrd/webcrawler/internal/store/memory"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	return crawl.FetchResponse{StatusCode: 200, FinalURL: req.URL, Body: []byte("<html></html>")}, nil
}

type allowAll struct{}

func (allowAll) IsAllowed(context.Context, string, string) (bool, error) { return true, nil }
func (allowAll) CrawlDelay(context.Context, string) (time.Duration, bool, error) {
	return 0, false, nil
}

type noopRateLimiter struct{}

func (noopRateLimiter) Acquire(context.Context, uuid.UUID, string) error { return nil }
func (noopRateLimiter) Throttle(uuid.UUID, string, time.Duration)        {}
func (noopRateLimiter) SetDelay(uuid.UUID, string, time.Duration)        {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) (*Server, crawl.Store) {
	t.Helper()
	store := memstore.New()
	logger := zaptest.NewLogger(t)
	factory := func(jobID uuid.UUID) *dispatcher.Dispatcher {
		return dispatcher.New(jobID, dispatcher.Deps{
			Store:       store,
			Frontier:    frontier.New(store),
			Robots:      allowAll{},
			RateLimiter: noopRateLimiter{},
			Fetcher:     stubFetcher{},
			Clock:       systemClock{},
			Logger:      logger,
		})
	}
	manager := jobmanager.New(store, factory, nil, nil, logger)
	srv := NewServer(manager, store, config.Config{}, logger, idgen.New())
	return srv, store
}

func TestServer_CreateJobAndGetJob(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(createJobRequest{SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 5, MaxConcurrentWorkers: 1, CrawlDelayMs: 100})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created jobDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "https://example.com/", created.SeedURL)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched jobDTO
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestServer_CreateJobRejectsInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(createJobRequest{SeedURL: ""})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListJobs(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://a.example/", MaxDepth: 1, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Jobs  []jobDTO `json:"jobs"`
		Total int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Total)
}

func TestServer_PauseResumeCancel(t *testing.T) {
	srv, store := newTestServer(t)
	job, err := store.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 1, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateJobStatus(context.Background(), job.ID, crawl.JobRunning, crawl.JobPatch{}))

	pauseReq := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/pause", nil)
	pauseRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(pauseRec, pauseReq)
	assert.Equal(t, http.StatusOK, pauseRec.Code)

	resumeReq := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/resume", nil)
	resumeRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resumeRec, resumeReq)
	assert.Equal(t, http.StatusOK, resumeRec.Code)

	cancelReq := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/cancel", nil)
	cancelRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(cancelRec, cancelReq)
	assert.Equal(t, http.StatusOK, cancelRec.Code)

	reloaded, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobCancelled, reloaded.Status)
}

func TestServer_ListAndGetPages(t *testing.T) {
	srv, store := newTestServer(t)
	job, err := store.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 1, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	page, _, err := store.UpsertPage(context.Background(), job.ID, job.SeedURL, job.SeedURL, 0)
	require.NoError(t, err)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/pages", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/pages/"+page.ID.String(), nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched pageDTO
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, page.ID.String(), fetched.ID)
}

func TestServer_ExportPagesStreamsNDJSON(t *testing.T) {
	srv, store := newTestServer(t)
	job, err := store.CreateJob(context.Background(), crawl.JobConfig{
		SeedURL: "https://example.com/", MaxDepth: 1, MaxPages: 1, MaxConcurrentWorkers: 1, CrawlDelayMs: 100,
	})
	require.NoError(t, err)
	page, _, err := store.UpsertPage(context.Background(), job.ID, job.SeedURL, job.SeedURL, 0)
	require.NoError(t, err)
	require.NoError(t, store.UpdatePage(context.Background(), job.ID, page.NormalizedURL, crawl.PageCompleted, crawl.PagePatch{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/pages/export", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got pageDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes()[:bytes.IndexByte(rec.Body.Bytes(), '\n')], &got))
	assert.Equal(t, page.ID.String(), got.ID)
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKeyMiddlewareRejectsMissingKey(t *testing.T) {
	store := memstore.New()
	logger := zaptest.NewLogger(t)
	manager := jobmanager.New(store, func(uuid.UUID) *dispatcher.Dispatcher { return nil }, nil, nil, logger)
	srv := NewServer(manager, store, config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}, logger, idgen.New())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/v1/jobs/", nil)
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}
