package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	first := crawl.JobEvent{JobID: uuid.New(), Status: crawl.JobCompleted}
	second := crawl.JobEvent{JobID: uuid.New(), Status: crawl.JobFailed}

	require.NoError(t, pub.PublishJobEvent(context.Background(), first))
	require.NoError(t, pub.PublishJobEvent(context.Background(), second))

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, first.JobID, events[0].JobID)
	assert.Equal(t, second.JobID, events[1].JobID)

	events[0].Status = crawl.JobRunning
	assert.Equal(t, crawl.JobCompleted, pub.Events()[0].Status, "Events must return a copy")
}
