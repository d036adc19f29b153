package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/arnegrd/webcrawler/internal/crawl"
	pubsubpublish "github.com/arnegrd/webcrawler/internal/publish/pubsub"
)

func TestPublisherPublishesJobEvent(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure()) //nolint:staticcheck // matches pstest's own example wiring
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "job-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "job-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := pubsubpublish.New(topic)
	evt := crawl.JobEvent{JobID: uuid.New(), Status: crawl.JobCompleted}
	require.NoError(t, pub.PublishJobEvent(ctx, evt))

	received := make(chan *pubsub.Message, 1)
	cctx, cancel := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(cctx, func(_ context.Context, msg *pubsub.Message) {
			received <- msg
			msg.Ack()
		})
	}()
	defer cancel()

	msg := <-received
	var got crawl.JobEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, evt.JobID, got.JobID)
	assert.Equal(t, evt.Status, got.Status)
	assert.Equal(t, evt.JobID.String(), msg.Attributes["job_id"])
}

func TestPublisherErrorsWithoutTopic(t *testing.T) {
	pub := pubsubpublish.New(nil)
	err := pub.PublishJobEvent(context.Background(), crawl.JobEvent{})
	assert.Error(t, err)
}
