package memory

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveCopiesData(t *testing.T) {
	t.Parallel()

	a := New()
	jobID, pageID := uuid.New(), uuid.New()
	payload := []byte("content")

	uri, err := a.Archive(context.Background(), jobID, pageID, "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("memory://%s/%s.html", jobID, pageID), uri)

	payload[0] = 'C'
	stored, ok := a.Get(fmt.Sprintf("%s/%s.html", jobID, pageID))
	require.True(t, ok)
	assert.Equal(t, "content", string(stored), "stored copy must be immutable")
}
