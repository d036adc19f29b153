// Package server wires every concrete component into a running crawl
// service: config, logging, telemetry, storage backends, and the HTTP
// Control API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/api"
	clocksystem "github.com/arnegrd/webcrawler/internal/clock/system"
	"github.com/arnegrd/webcrawler/internal/config"
	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/dispatcher"
	collyfetcher "github.com/arnegrd/webcrawler/internal/fetch/colly"
	"github.com/arnegrd/webcrawler/internal/fetch/headless"
	"github.com/arnegrd/webcrawler/internal/extract"
	"github.com/arnegrd/webcrawler/internal/frontier"
	"github.com/arnegrd/webcrawler/internal/idgen"
	"github.com/arnegrd/webcrawler/internal/jobmanager"
	"github.com/arnegrd/webcrawler/internal/logging"
	blobgcs "github.com/arnegrd/webcrawler/internal/blobstore/gcs"
	blobmemory "github.com/arnegrd/webcrawler/internal/blobstore/memory"
	"github.com/arnegrd/webcrawler/internal/progress"
	"github.com/arnegrd/webcrawler/internal/progress/sinks"
	pubsubpublisher "github.com/arnegrd/webcrawler/internal/publish/pubsub"
	memorypublisher "github.com/arnegrd/webcrawler/internal/publish/memory"
	"github.com/arnegrd/webcrawler/internal/ratelimit"
	"github.com/arnegrd/webcrawler/internal/robots"
	pgstore "github.com/arnegrd/webcrawler/internal/store"
	memorystore "github.com/arnegrd/webcrawler/internal/store/memory"
)

// App bundles every long-lived dependency the service owns, so Run/Close can
// shut each one down in the right order.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store       crawl.Store
	manager     *jobmanager.Manager
	apiServer   *api.Server
	progressHub *progress.Hub

	pubsubClient   *pubsub.Client
	pubsubTopic    *pubsub.Topic
	storageClient  *storage.Client
	headlessClient *headless.Fetcher
}

// Build constructs every component described by cfg and returns a App ready
// to Run. Nothing is started yet beyond client handles.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}

	app := &App{cfg: cfg, logger: logger}

	store, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store

	archiver, err := app.setupBlobstore(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	emitter := app.setupProgress(logger)

	fetcher, err := app.setupFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	policy := robots.New(store, cfg.Crawler.UserAgent, logger.Named("robots"))
	limiter := ratelimit.New()
	extractor := extract.New()
	idGen := idgen.New()
	clock := clocksystem.New()

	factory := func(jobID uuid.UUID) *dispatcher.Dispatcher {
		return dispatcher.New(jobID, dispatcher.Deps{
			Store:         store,
			Frontier:      frontier.New(store),
			Robots:        policy,
			RateLimiter:   limiter,
			Fetcher:       fetcher,
			LinkExtractor: extractor,
			MetaExtractor: extractor,
			Clock:         clock,
			Logger:        logger.Named("dispatcher"),
			Progress:      emitter,
			Archiver:      archiver,
		})
	}
	app.manager = jobmanager.New(store, factory, publisher, emitter, logger.Named("jobmanager"))

	app.apiServer = api.NewServer(app.manager, store, cfg, logger.Named("api"), idGen)

	return app, nil
}

func setupStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database DSN configured, using in-memory store")
		return memorystore.New(), nil
	}
	s, err := pgstore.New(ctx, pgstore.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	return s, nil
}

func (a *App) setupBlobstore(ctx context.Context) (crawl.BlobArchiver, error) {
	if a.cfg.Storage.GCSBucket == "" {
		a.logger.Warn("no GCS bucket configured, using in-memory blob store")
		return blobmemory.New(), nil
	}
	var err error
	a.storageClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	archiver, err := blobgcs.New(a.storageClient, blobgcs.Config{
		Bucket: a.cfg.Storage.GCSBucket,
		Prefix: a.cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs blob archiver init failed: %w", err)
	}
	return archiver, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawl.JobEventPublisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubTopic = a.pubsubClient.Topic(a.cfg.PubSub.TopicName)
	return pubsubpublisher.New(a.pubsubTopic), nil
}

func (a *App) setupProgress(logger *zap.Logger) progress.Emitter {
	sinkList := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	if promSink, err := sinks.NewPrometheusSink(nil); err != nil {
		logger.Warn("prometheus progress sink init failed", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	a.progressHub = progress.NewHub(progress.Config{Logger: logger.Named("progress_hub")}, sinkList...)
	return a.progressHub
}

func (a *App) setupFetcher(cfg config.Config, logger *zap.Logger) (crawl.Fetcher, error) {
	if !cfg.Headless.Enabled {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}), nil
	}
	h, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.HeadlessNavTimeout(),
	})
	if err != nil {
		logger.Warn("headless fetcher init failed, falling back to colly", zap.Error(err))
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}), nil
	}
	a.headlessClient = h
	return h, nil
}

// Run starts the HTTP server and the completion detector, blocking until
// ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.manager.Recover(ctx); err != nil {
		a.logger.Error("job recovery failed", zap.Error(err))
	}

	go a.manager.RunCompletionDetector(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close releases every client handle the App opened during Build.
func (a *App) Close(ctx context.Context) error {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headlessClient != nil {
		a.headlessClient.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	// Syncing a logger that writes to a pipe or terminal fails with EINVAL
	// or ENOTTY; that is not a shutdown failure.
	if err := a.logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("logger sync: %w", err)
	}
	return nil
}
