package llm

import (
	"context"
	"fmt"

	"github.com/foliolabs/portfolio-assistant/config"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Options struct {
	Temperature     float32
	MaxOutputTokens int

	// APIKey, when set, overrides the client's configured credential for
	// this call. The chat orchestrator uses it to honor the operator-stored
	// key without rebuilding the client.
	APIKey string
}

// Client generates a completion for a conversation. The model is passed per
// call so the orchestrator can walk its fallback ladder over one client.
type Client interface {
	Generate(ctx context.Context, model, system string, messages []Message, opts Options) (string, error)
}

// APIError is a non-2xx response from the completion endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion API returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the next model on the fallback ladder should be
// tried: rate limiting and unknown-model responses only.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode == 404
}

func NewClient(cfg config.Config) (Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg.GeminiAPIKey), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}
