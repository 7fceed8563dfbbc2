package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type Config struct {
	PostgresDSN string
	DocStore    string
	ListenAddr  string

	Embeddings EmbeddingsConfig

	LLMProvider string
	// ChatModels is the fallback ladder: the first entry is the primary
	// model, the rest are tried in order on retryable failures.
	ChatModels []string

	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// ChatAPIKey returns the environment credential for the configured chat
// provider.
func (c Config) ChatAPIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/portfolio?sslmode=disable"),
		DocStore:    getEnv("DOC_STORE", StorePostgres),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderGemini),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-004"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		LLMProvider:   getEnv("LLM_PROVIDER", ProviderGemini),
		ChatModels:    splitList(getEnv("CHAT_MODELS", "gemini-2.0-flash,gemini-1.5-flash,gemini-1.5-flash-8b")),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
