package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/portfolio-assistant/config"
)

func testConfig(geminiKey string) config.Config {
	return config.Config{
		GeminiAPIKey: geminiKey,
		Embeddings: config.EmbeddingsConfig{
			Provider:  config.ProviderGemini,
			Model:     "text-embedding-004",
			Dimension: 768,
		},
	}
}

func newGeminiTestEmbedder(t *testing.T, dimension int, handler http.HandlerFunc) Embedder {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	embedder := NewGeminiEmbedder(Options{GeminiAPIKey: "test-key", Model: "embed-model", Dimension: dimension}).(*geminiEmbedder)
	embedder.baseURL = srv.URL
	return embedder
}

func TestGeminiEmbedReturnsVector(t *testing.T) {
	embedder := newGeminiTestEmbedder(t, 3, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "models/embed-model:embedContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Content.Parts, 1)
		assert.Equal(t, "hello", req.Content.Parts[0].Text)

		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	})

	vectors, err := embedder.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
}

func TestGeminiEmbedRejectsEmptyText(t *testing.T) {
	embedder := newGeminiTestEmbedder(t, 0, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for empty text")
	})

	_, err := embedder.Embed(context.Background(), []string{"  "})
	require.Error(t, err)
}

func TestGeminiEmbedSurfacesProviderError(t *testing.T) {
	embedder := newGeminiTestEmbedder(t, 0, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("API key not valid"))
	})

	_, err := embedder.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGeminiEmbedRejectsMissingVector(t *testing.T) {
	embedder := newGeminiTestEmbedder(t, 0, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":{"values":[]}}`))
	})

	_, err := embedder.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
}

func TestGeminiEmbedChecksDimension(t *testing.T) {
	embedder := newGeminiTestEmbedder(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2]}}`))
	})

	_, err := embedder.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	_, err := NewEmbedder(testConfig(""))
	require.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewEmbedder(testConfig("some-key"))
	require.NoError(t, err)
}
