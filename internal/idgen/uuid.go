// Package idgen provides ID generation helpers.
package idgen

import (
	"github.com/google/uuid"
)

// Generator implements crawl.IDGenerator using UUIDv7, so IDs sort
// chronologically by creation time.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7. NewV7 only fails when the system clock or entropy
// source is unreadable; falling back to a random v4 keeps callers that treat
// IDGenerator as infallible correct in that vanishingly rare case.
func (Generator) NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
