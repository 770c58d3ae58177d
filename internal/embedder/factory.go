package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/courseai/lectio-go/internal/rag"
)

// DefaultDimensions returns the embedding vector length for a known provider
// and model combination, or 0 when the model default should be used.
func DefaultDimensions(provider, model string) int {
	switch strings.ToLower(provider) {
	case "ollama":
		// nomic-embed-text and friends produce 768-dimensional vectors.
		return 768
	case "openai", "azure":
		if strings.Contains(model, "3-large") {
			return 3072
		}
		return 1536
	}
	return 0
}

// NewFromEnv builds an Embedder from environment variables.
//
// EMBEDDING_PROVIDER selects the backend ("ollama", "openai", "azure");
// when unset, MODEL_PROVIDER is consulted, and ollama is the final default.
func NewFromEnv() (rag.Embedder, error) {
	provider := strings.ToLower(getEnv("EMBEDDING_PROVIDER", getEnv("MODEL_PROVIDER", "ollama")))

	switch provider {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		}), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: OPENAI_API_KEY is required for the openai embedding provider")
		}
		model := getEnv("EMBEDDING_MODEL", "text-embedding-3-small")
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := os.Getenv("AZURE_OPENAI_API_KEY")
		endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
		if apiKey == "" || endpoint == "" {
			return nil, fmt.Errorf("embedder: AZURE_OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT are required for the azure embedding provider")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimSuffix(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown embedding provider %q (supported: ollama, openai, azure)", provider)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
