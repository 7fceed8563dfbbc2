// Package rag wires the embedding client and the document store into the
// ingestion and retrieval pipelines behind the assistant.
package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/foliolabs/portfolio-assistant/content"
	"github.com/foliolabs/portfolio-assistant/docstore"
	"github.com/foliolabs/portfolio-assistant/embeddings"
)

const (
	TypeProject = "project"
	TypeCV      = "cv"
)

// EmbedError marks a failure to produce an embedding. The document store is
// never touched once one occurs.
type EmbedError struct {
	Err error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

type Service struct {
	store    docstore.Store
	embedder embeddings.Embedder
	logger   *log.Logger
}

func NewService(store docstore.Store, embedder embeddings.Embedder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Ingest embeds text and stores the resulting document. Embedding strictly
// precedes the upsert: a document is never stored with a missing or stale
// vector. sourceID may be empty for free-form passages with no external
// counterpart.
func (s *Service) Ingest(ctx context.Context, title, text, docType, sourceID string) (uuid.UUID, error) {
	if s.embedder == nil {
		return uuid.Nil, fmt.Errorf("embedder is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return uuid.Nil, fmt.Errorf("document text cannot be empty")
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return uuid.Nil, &EmbedError{Err: err}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return uuid.Nil, &EmbedError{Err: fmt.Errorf("embedder returned no vector")}
	}

	id, err := s.store.Upsert(ctx, docstore.Document{
		Title:     title,
		Text:      text,
		Type:      docType,
		SourceID:  sourceID,
		Embedding: vectors[0],
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("store document: %w", err)
	}

	return id, nil
}

// SyncReport summarizes a bulk project sync. Every input project lands in
// exactly one bucket: Synced counts successful re-indexes, Failures is keyed
// by project id, and Skipped lists projects with nothing to index.
type SyncReport struct {
	Synced   int
	Failures map[string]error
	Skipped  []string
}

// SyncProjects re-indexes every project into the document store, one document
// per project keyed by the project id. Records are processed independently: a
// failing record is reported and the rest of the batch continues.
func (s *Service) SyncProjects(ctx context.Context, projects []content.Project) SyncReport {
	report := SyncReport{Failures: make(map[string]error)}

	for _, project := range projects {
		text := project.SearchText()
		if strings.TrimSpace(text) == "" {
			s.logger.Printf("skip project %s: empty search text", project.ID)
			report.Skipped = append(report.Skipped, project.ID)
			continue
		}

		title := "Project: " + project.Title
		if _, err := s.Ingest(ctx, title, text, TypeProject, project.ID); err != nil {
			s.logger.Printf("sync failed for project %s: %v", project.ID, err)
			report.Failures[project.ID] = err
			continue
		}
		report.Synced++
	}

	return report
}

// Retrieve embeds the query, ranks stored documents against it, and hydrates
// the winners. The similarity ranking is preserved through hydration; ids
// deleted between search and fetch are dropped from the result. An empty
// result is not an error.
func (s *Service) Retrieve(ctx context.Context, query string, limit int) ([]docstore.Document, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = docstore.DefaultSearchLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &EmbedError{Err: err}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &EmbedError{Err: fmt.Errorf("embedder returned no vector")}
	}

	ids, err := s.store.VectorSearch(ctx, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(ids) == 0 {
		return []docstore.Document{}, nil
	}

	fetched, err := s.store.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}

	byID := make(map[uuid.UUID]docstore.Document, len(fetched))
	for _, doc := range fetched {
		byID[doc.ID] = doc
	}

	results := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			results = append(results, doc)
		}
	}

	return results, nil
}
