// Package pubsub implements crawl.JobEventPublisher over Google Cloud
// Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

// Publisher publishes job-lifecycle events to a single Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the given topic. Callers own the Client the
// topic was obtained from and are responsible for closing it.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// PublishJobEvent marshals evt to JSON and publishes it, blocking until the
// broker acknowledges or ctx is done.
func (p *Publisher) PublishJobEvent(ctx context.Context, evt crawl.JobEvent) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": evt.JobID.String(), "status": string(evt.Status)},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}
