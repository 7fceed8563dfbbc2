package docstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/portfolio-assistant/database"
)

// Requires a running Postgres with pgvector; skipped otherwise.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping postgres tests")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.EnsureSchema(ctx, pool, 3))
	_, err = pool.Exec(ctx, "TRUNCATE documents")
	require.NoError(t, err)

	return NewPostgresStore(pool)
}

func TestPostgresUpsertReplacesBySourceID(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, Document{
		Title:     "Project: Foo",
		Text:      "old text",
		Type:      "project",
		SourceID:  "proj_1",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)

	id, err := store.Upsert(ctx, Document{
		Title:     "Project: Foo",
		Text:      "new text",
		Type:      "project",
		SourceID:  "proj_1",
		Embedding: []float32{0, 1, 0},
	})
	require.NoError(t, err)

	ids, err := store.VectorSearch(ctx, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, id, ids[0])

	docs, err := store.FetchByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "new text", docs[0].Text)
}

func TestPostgresVectorSearchRanking(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	closeID, err := store.Upsert(ctx, Document{Title: "close", Text: "a", Type: "note", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, Document{Title: "far", Text: "b", Type: "note", Embedding: []float32{0, 0, 1}})
	require.NoError(t, err)

	ids, err := store.VectorSearch(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, closeID, ids[0])
}

func TestPostgresFetchByIDsSkipsMissing(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	id, err := store.Upsert(ctx, Document{Title: "only", Text: "a", Type: "note", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	docs, err := store.FetchByIDs(ctx, []uuid.UUID{id, uuid.New()})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
}
