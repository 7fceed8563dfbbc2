// Package docstore persists the text passages the assistant retrieves over,
// together with the embedding vector each passage was indexed under.
package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const DefaultSearchLimit = 3

// Document is a retrievable text passage. SourceID, when set, is the stable
// identifier of the external record the passage was derived from; at most one
// document exists per SourceID. The embedding is derived from Text at
// ingestion time and is never patched in place.
type Document struct {
	ID        uuid.UUID
	Title     string
	Text      string
	Type      string
	SourceID  string
	Embedding []float32
	CreatedAt time.Time
}

type Store interface {
	// Upsert inserts doc. When doc.SourceID is set, any existing document
	// with the same SourceID is deleted first, atomically with the insert.
	Upsert(ctx context.Context, doc Document) (uuid.UUID, error)

	// VectorSearch returns up to limit document ids ranked best-first by
	// similarity to the query embedding.
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]uuid.UUID, error)

	// FetchByIDs returns the documents for ids, silently skipping ids that
	// no longer exist. Order of the result is unspecified.
	FetchByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error)
}
