// Package gcs implements crawl.BlobArchiver against Google Cloud Storage,
// for page bodies that exceed the in-row truncation point.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Archiver writes overflow page bodies to a configured GCS bucket.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed Archiver.
func New(client *storage.Client, cfg Config) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Archive uploads body and returns a gs:// URI keyed by job and page ID.
func (a *Archiver) Archive(ctx context.Context, jobID, pageID uuid.UUID, contentType string, body io.Reader) (string, error) {
	path := objectPath(a.prefix, jobID, pageID)
	writer := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, body); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}

func objectPath(prefix string, jobID, pageID uuid.UUID) string {
	if prefix == "" {
		prefix = "pages"
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, pageID)
}
