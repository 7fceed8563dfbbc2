package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/foliolabs/portfolio-assistant/config"
)

// ErrNoAPIKey marks the selected embedding provider as unconfigured. It is
// fatal for ingestion and retrieval; the chat layer degrades instead.
var ErrNoAPIKey = errors.New("embedding provider api key not configured")

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Model     string
	Dimension int

	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch cfg.Embeddings.Provider {
	case config.ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected: %w", ErrNoAPIKey)
		}
		return NewGeminiEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected: %w", ErrNoAPIKey)
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embeddings.Provider)
	}
}
