// Package store provides durable persistence for the registry and the
// consistency store as flat JSON documents. Two backends are available: a
// local file store with atomic writes, and a PostgreSQL store holding one
// JSONB row per document.
//
// Absence of a document is a valid "empty store" state, reported as
// [ErrNotFound] so callers can start fresh.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no document exists under the key.
var ErrNotFound = errors.New("store: document not found")

// DocStore persists named JSON documents.
type DocStore interface {
	// Load decodes the document stored under key into v.
	// Returns [ErrNotFound] if the document does not exist.
	Load(ctx context.Context, key string, v any) error

	// Save encodes v and stores it under key, replacing any prior document.
	Save(ctx context.Context, key string, v any) error
}
