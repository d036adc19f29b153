// Package memory stores archived page bodies in-memory, for development and
// for deployments without GCS configured.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Archiver implements crawl.BlobArchiver against an in-process map.
type Archiver struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an in-memory Archiver.
func New() *Archiver {
	return &Archiver{data: make(map[string][]byte)}
}

// Archive persists body and returns a memory:// URI.
func (a *Archiver) Archive(_ context.Context, jobID, pageID uuid.UUID, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	path := fmt.Sprintf("%s/%s.html", jobID, pageID)
	a.mu.Lock()
	a.data[path] = append([]byte(nil), data...)
	a.mu.Unlock()

	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the bytes stored at uri's path, for test assertions.
func (a *Archiver) Get(path string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.data[path]
	return data, ok
}
