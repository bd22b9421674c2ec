package store

import (
	"context"

	"github.com/devrev/tablecore/internal/model"
)

// InstantStore persists one artifact per (timestamp, action, state) triple.
// Every PutInstant is a single atomic create-if-absent write: a reader never
// observes a half-written artifact and an existing artifact is never replaced.
type InstantStore interface {
	// PutInstant creates the artifact; it fails with InstantExists when already present
	PutInstant(ctx context.Context, instant model.Instant, content []byte) error
	// ListInstants returns every artifact present, in no particular order
	ListInstants(ctx context.Context) ([]model.Instant, error)
	// ReadInstant returns the content of one artifact or InstantNotFound
	ReadInstant(ctx context.Context, instant model.Instant) ([]byte, error)
	// DeleteInstant removes one artifact or returns InstantNotFound
	DeleteInstant(ctx context.Context, instant model.Instant) error

	Ping(ctx context.Context) error
	Close() error
}
