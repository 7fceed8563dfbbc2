package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGeminiTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewGeminiClient("test-key")
	client.baseURL = srv.URL
	return client
}

func TestGeminiGenerateParsesCandidate(t *testing.T) {
	var captured geminiGenerateRequest

	client := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "models/test-model:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "  hello there  "}}}},
			},
		})
	})

	answer, err := client.Generate(context.Background(), "test-model", "be brief",
		[]Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "who are you?"},
		},
		Options{Temperature: 0.7, MaxOutputTokens: 500},
	)
	require.NoError(t, err)
	assert.Equal(t, "hello there", answer)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	require.NotNil(t, captured.SystemInstruction)
	require.Len(t, captured.SystemInstruction.Parts, 1)
	assert.Equal(t, "be brief", captured.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.7), captured.GenerationConfig.Temperature)
	assert.Equal(t, 500, captured.GenerationConfig.MaxOutputTokens)
}

func TestGeminiGenerateTreatsCandidatePathAsOptional(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates":   `{}`,
		"empty candidate": `{"candidates":[{}]}`,
		"no parts":        `{"candidates":[{"content":{}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			payload := body
			client := newGeminiTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(payload))
			})

			answer, err := client.Generate(context.Background(), "m", "", []Message{{Role: RoleUser, Content: "hi"}}, Options{})
			require.NoError(t, err)
			assert.Empty(t, answer)
		})
	}
}

func TestGeminiGenerateReturnsAPIErrorWithStatus(t *testing.T) {
	client := newGeminiTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("quota exhausted"))
	})

	_, err := client.Generate(context.Background(), "m", "", []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "quota exhausted", apiErr.Body)
	assert.True(t, apiErr.Retryable())
}

func TestGeminiGenerateRequiresKey(t *testing.T) {
	client := NewGeminiClient("")

	_, err := client.Generate(context.Background(), "m", "", []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	require.Error(t, err)
}

func TestGeminiGenerateKeyOverride(t *testing.T) {
	client := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "override-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	answer, err := client.Generate(context.Background(), "m", "", []Message{{Role: RoleUser, Content: "hi"}}, Options{APIKey: "override-key"})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestAPIErrorRetryable(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 429}).Retryable())
	assert.True(t, (&APIError{StatusCode: 404}).Retryable())
	assert.False(t, (&APIError{StatusCode: 400}).Retryable())
	assert.False(t, (&APIError{StatusCode: 500}).Retryable())
}
