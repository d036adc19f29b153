package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnegrd/webcrawler/internal/config"
)

func testConfig(port int) config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: port},
		Crawler: config.CrawlerConfig{UserAgent: "webcrawler-test/1.0", FetchTimeoutSec: 5},
		Logging: config.LoggingConfig{Development: true},
	}
}

func TestBuildFallsBackToInMemoryBackends(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(0))
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.store)
	assert.NotNil(t, app.manager)
	assert.NotNil(t, app.apiServer)

	// No Postgres/GCS/Pub/Sub config was supplied, so none of these client
	// handles should have been opened.
	assert.Nil(t, app.pubsubClient)
	assert.Nil(t, app.pubsubTopic)
	assert.Nil(t, app.storageClient)
	assert.Nil(t, app.headlessClient)

	require.NoError(t, app.Close(context.Background()))
}

func TestBuildWiresHealthzThroughHandler(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(0))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildHeadlessFallsBackToColly(t *testing.T) {
	t.Parallel()

	cfg := testConfig(0)
	cfg.Headless.Enabled = true
	cfg.Headless.MaxParallel = -1 // invalid, forces headless.NewChromedp to error

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	// Falling back to the colly fetcher must not leave a headless client
	// handle around for Close to shut down.
	assert.Nil(t, app.headlessClient)
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(18080))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Give the HTTP server a moment to start listening before tearing down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
