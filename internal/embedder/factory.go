package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/groundqa-go/internal/rag"
	"github.com/54b3r/groundqa-go/internal/retry"
)

// Supported embedding backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGemini = "gemini"
	BackendHash   = "hash"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"
	defaultHashModel   = "hash-v1"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ: override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Config is the resolved embedding configuration.
type Config struct {
	// Backend is one of ollama, openai, azure, gemini, hash.
	Backend string
	// Model is the backend model or deployment name.
	Model string
	// Endpoint is the backend base URL (ollama host, OpenAI base, Azure endpoint).
	Endpoint string
	// APIKey authenticates against hosted backends.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions is the vector length.
	Dimensions int
	// MaxInputChars truncates longer inputs.
	MaxInputChars int
	// BatchSize caps texts per backend call.
	BatchSize int
	// Retry bounds backend retries and per-call timeouts.
	Retry retry.Policy
	// RequestsPerSecond caps backend calls. Zero means unlimited.
	RequestsPerSecond float64
}

// DefaultDimensions returns the correct default embedding vector size for the
// given backend name. Callers that need to pre-configure a vector index (e.g.
// Qdrant collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	case BackendHash:
		return DefaultHashDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves the embedding configuration using cascading
// defaults that inherit from the chat provider configuration when
// embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: if unset, inherits MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL: overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY: overrides the inherited API key
//  5. EMBEDDING_ENDPOINT: overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS: overrides the default dimensions
//  7. EMBEDDING_MAX_INPUT_CHARS, EMBEDDING_BATCH_SIZE, EMBEDDING_TIMEOUT,
//     EMBEDDING_RPS
func ConfigFromEnv() Config {
	backend := resolveBackend()
	cfg := Config{
		Backend:       backend,
		Dimensions:    DefaultDimensions(backend),
		MaxInputChars: getEnvInt("EMBEDDING_MAX_INPUT_CHARS", DefaultMaxInputChars),
		BatchSize:     getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		Retry:         retry.PolicyFromEnv("EMBEDDING_TIMEOUT"),
		APIKey:        getEnv("EMBEDDING_API_KEY"),
		Endpoint:      getEnv("EMBEDDING_ENDPOINT"),

		RequestsPerSecond: getEnvFloat("EMBEDDING_RPS", 0),
	}

	switch backend {
	case BackendOllama:
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
	case BackendOpenAI:
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = "https://api.openai.com/v1"
		}
	case BackendAzure:
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
	case BackendGemini:
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel)
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("GOOGLE_API_KEY")
		}
	case BackendHash:
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultHashModel)
	}
	return cfg
}

// resolveBackend falls back to MODEL_PROVIDER, then "ollama".
func resolveBackend() string {
	backend := strings.ToLower(getEnv("EMBEDDING_PROVIDER"))
	if backend == "" {
		backend = strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", BackendOllama))
	}
	return backend
}

// New constructs the configured backend wrapped in a Versioned embedder.
func New(ctx context.Context, cfg Config) (*Versioned, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend rag.Embedder
	switch cfg.Backend {
	case BackendOllama:
		backend = NewOllamaEmbedder(&OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Retry.CallTimeout,
		})
	case BackendOpenAI:
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Retry.CallTimeout,
		})
	case BackendAzure:
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimSuffix(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Retry.CallTimeout,
		})
	case BackendGemini:
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		backend = g
	case BackendHash:
		backend = NewHashEmbedder(cfg.Dimensions)
	}

	return NewVersioned(backend, VersionedConfig{
		Backend:       cfg.Backend,
		Model:         cfg.Model,
		Dimensions:    cfg.Dimensions,
		MaxInputChars: cfg.MaxInputChars,
		BatchSize:     cfg.BatchSize,
		Retry:         cfg.Retry,

		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

// NewFromEnv is ConfigFromEnv followed by New.
func NewFromEnv(ctx context.Context) (*Versioned, error) {
	return New(ctx, ConfigFromEnv())
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendHash:
	default:
		return fmt.Errorf("embedder: unknown backend %q: valid values: ollama, openai, azure, gemini, hash", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("embedder: EMBEDDING_MODEL must not be empty")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be positive, got %d", c.Dimensions)
	}
	return nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
