package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com/v1beta"

type geminiEmbedder struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func NewGeminiEmbedder(opts Options) Embedder {
	return &geminiEmbedder{
		baseURL:   defaultGeminiBase,
		apiKey:    opts.GeminiAPIKey,
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *geminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)

	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("cannot embed empty text")
		}

		reqBody, err := json.Marshal(geminiEmbedRequest{
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal gemini embed request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("create gemini embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call gemini embed API: %w", err)
		}

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("gemini embed API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var payload geminiEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode gemini embed response: %w", err)
		}
		resp.Body.Close()

		vec := payload.Embedding.Values
		if len(vec) == 0 {
			return nil, fmt.Errorf("gemini embed API returned no vector")
		}
		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("gemini embedding dimension mismatch: expected %d, got %d", e.dimension, len(vec))
		}

		results = append(results, vec)
	}

	return results, nil
}
