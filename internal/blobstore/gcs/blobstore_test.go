package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "bucket"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()

	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestObjectPathDefaultsPrefix(t *testing.T) {
	t.Parallel()

	jobID, pageID := uuid.New(), uuid.New()
	got := objectPath("", jobID, pageID)
	assert.Equal(t, "pages/"+jobID.String()+"/"+pageID.String()+".html", got)

	got = objectPath("custom", jobID, pageID)
	assert.Equal(t, "custom/"+jobID.String()+"/"+pageID.String()+".html", got)
}
