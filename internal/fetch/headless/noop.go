package headless

import (
	"context"
	"errors"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Noop implements crawl.Fetcher but always errors. server.Build does not use
// it: when NewChromedp fails there, it logs a warning and falls back to the
// colly fetcher.
type Noop struct{}

// NewNoop creates a Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns an error.
func (Noop) Fetch(_ context.Context, _ crawl.FetchRequest) (crawl.FetchResponse, error) {
	return crawl.FetchResponse{}, errors.New("headless fetcher not configured")
}
