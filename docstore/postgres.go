package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, doc Document) (id uuid.UUID, err error) {
	if s.pool == nil {
		return uuid.Nil, fmt.Errorf("postgres pool is nil")
	}
	if len(doc.Embedding) == 0 {
		return uuid.Nil, fmt.Errorf("document embedding is empty")
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The embedding is derived from the text, so a changed source record
	// must replace the whole row rather than patch it.
	if doc.SourceID != "" {
		if _, err = tx.Exec(ctx, "DELETE FROM documents WHERE source_id = $1", doc.SourceID); err != nil {
			return uuid.Nil, fmt.Errorf("delete existing document: %w", err)
		}
	}

	sourceID := any(doc.SourceID)
	if doc.SourceID == "" {
		sourceID = nil
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO documents (id, title, content, doc_type, source_id, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, doc.ID, doc.Title, doc.Text, doc.Type, sourceID, pgvector.NewVector(doc.Embedding)); err != nil {
		return uuid.Nil, fmt.Errorf("insert document: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit tx: %w", err)
	}

	return doc.ID, nil
}

func (s *PostgresStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]uuid.UUID, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM documents
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar documents: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return ids, nil
}

func (s *PostgresStore) FetchByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// the stored vector is not hydrated: it is derived state nobody reads back
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content, doc_type, COALESCE(source_id, ''), created_at
		FROM documents
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query documents by id: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, len(ids))
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Text, &doc.Type, &doc.SourceID, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return docs, nil
}

var _ Store = (*PostgresStore)(nil)
