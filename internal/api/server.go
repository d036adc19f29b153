// Package api exposes the HTTP Control API for the crawl service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/config"
	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/jobmanager"
	"github.com/arnegrd/webcrawler/internal/telemetry"
)

// Server wires HTTP handlers to the JobManager and Store.
type Server struct {
	router  chi.Router
	manager *jobmanager.Manager
	store   crawl.Store
	cfg     config.Config
	logger  *zap.Logger
	idGen   crawl.IDGenerator
}

// NewServer constructs a Server with its full middleware chain and routes.
// idGen may be nil, in which case request IDs fall back to uuid.NewString().
func NewServer(manager *jobmanager.Manager, store crawl.Store, cfg config.Config, logger *zap.Logger, idGen crawl.IDGenerator) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{manager: manager, store: store, cfg: cfg, logger: logger, idGen: idGen}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.health)
	r.Handle("/metrics", telemetry.Handler())
	r.With(telemetry.Middleware).Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.createJob)
		r.Get("/", s.listJobs)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Post("/cancel", s.cancelJob)
			r.Post("/pause", s.pauseJob)
			r.Post("/resume", s.resumeJob)
			r.Get("/pages", s.listPages)
			r.Get("/pages/export", s.exportPages)
			r.Get("/pages/{page_id}", s.getPage)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "up"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "down"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"database":    dbStatus,
		"queue-store": dbStatus, // the frontier lives in the same Store as the database.
	})
}

type createJobRequest struct {
	SeedURL              string   `json:"seedUrl"`
	MaxDepth             int      `json:"maxDepth"`
	MaxPages             int      `json:"maxPages"`
	MaxConcurrentWorkers int      `json:"maxConcurrentWorkers"`
	CrawlDelayMs         int      `json:"crawlDelayMs"`
	RespectRobotsTxt     *bool    `json:"respectRobotsTxt"`
	IncludePatterns      []string `json:"includePatterns"`
	ExcludePatterns      []string `json:"excludePatterns"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cfg := crawl.JobConfig{
		SeedURL:              req.SeedURL,
		MaxDepth:             req.MaxDepth,
		MaxPages:             req.MaxPages,
		MaxConcurrentWorkers: req.MaxConcurrentWorkers,
		CrawlDelayMs:         req.CrawlDelayMs,
		RespectRobotsTxt:     true,
		IncludePatterns:      req.IncludePatterns,
		ExcludePatterns:      req.ExcludePatterns,
	}
	if req.RespectRobotsTxt != nil {
		cfg.RespectRobotsTxt = *req.RespectRobotsTxt
	}

	job, err := s.manager.CreateJob(r.Context(), cfg)
	if err != nil {
		writeJobError(w, err)
		return
	}
	if err := s.manager.Start(r.Context(), job.ID); err != nil {
		s.logger.Error("api: start job after create failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, toJobDTO(job))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(job))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 20, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *crawl.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := crawl.JobStatus(raw)
		status = &st
	}
	jobs, total, err := s.store.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("api: list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobDTOs(jobs), "total": total})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.manager.Cancel(r.Context(), jobID); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String(), "status": string(crawl.JobCancelled)})
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.manager.Pause(r.Context(), jobID); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String(), "status": string(crawl.JobPaused)})
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.manager.Resume(r.Context(), jobID); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String(), "status": string(crawl.JobRunning)})
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, 50, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *crawl.PageStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := crawl.PageStatus(raw)
		status = &st
	}
	pages, total, err := s.store.ListPages(r.Context(), jobID, status, limit, offset)
	if err != nil {
		s.logger.Error("api: list pages failed", zap.String("job_id", jobID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": toPageDTOs(pages), "total": total})
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageID, err := parseJobID(r, "page_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.store.GetPage(r.Context(), jobID, pageID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// exportPages streams every completed page as newline-delimited JSON,
// reading the cursor one row at a time so the full result set is never
// materialized in memory. Only json is supported; ?format=csv is rejected.
func (s *Server) exportPages(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if format := r.URL.Query().Get("format"); format != "" && format != "json" {
		writeError(w, http.StatusBadRequest, "unsupported format")
		return
	}
	completed := crawl.PageCompleted
	iter, err := s.store.ExportPages(r.Context(), jobID, &completed)
	if err != nil {
		writeJobError(w, err)
		return
	}
	defer iter.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for {
		page, ok, err := iter.Next(r.Context())
		if err != nil {
			s.logger.Error("api: export pages failed mid-stream", zap.String("job_id", jobID.String()), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if err := enc.Encode(toPageDTO(page)); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func parseJobID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return uuid.UUID{}, errors.New(param + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid " + param)
	}
	return id, nil
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crawl.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, crawl.ErrValidation), errors.Is(err, crawl.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID string
		if s.idGen != nil {
			reqID = s.idGen.NewID().String()
		} else {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("recover", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacker not supported")
	}
	return h.Hijack()
}
