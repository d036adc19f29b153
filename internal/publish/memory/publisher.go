// Package memory provides an in-memory crawl.JobEventPublisher for tests
// and for deployments without Pub/Sub configured.
package memory

import (
	"context"
	"sync"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Publisher records every published event for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []crawl.JobEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishJobEvent records evt and always succeeds.
func (p *Publisher) PublishJobEvent(_ context.Context, evt crawl.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

// Events returns a copy of every event recorded so far.
func (p *Publisher) Events() []crawl.JobEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawl.JobEvent, len(p.events))
	copy(out, p.events)
	return out
}
