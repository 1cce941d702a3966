package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/groundqa-go/internal/budget"
	"github.com/54b3r/groundqa-go/internal/catalog"
	"github.com/54b3r/groundqa-go/internal/extract"
	"github.com/54b3r/groundqa-go/internal/ingestion"
	"github.com/54b3r/groundqa-go/internal/qa"
	"github.com/54b3r/groundqa-go/internal/rag"
	"github.com/54b3r/groundqa-go/internal/retry"
)

// catalogDisabled is the GROUNDQA_CATALOG_DB value that turns the catalog off.
const catalogDisabled = "disabled"

// Pipeline holds the typed settings of the ingestion and answering
// pipeline, resolved from environment variables after Load.
type Pipeline struct {
	// Index selects and configures the vector index.
	Index rag.IndexConfig

	// Ingestion configures chunking and embedding throughput.
	Ingestion ingestion.Config

	// Fetch configures URL sources.
	Fetch extract.FetchConfig

	// TopK is the number of chunks retrieved per question.
	TopK int

	// MinScore is the relevance floor.
	MinScore float32

	// MaxContextChars caps the context block.
	MaxContextChars int

	// MaxPromptTokens is the estimated prompt budget.
	MaxPromptTokens int

	// MaxQuestionChars is the longest question answered.
	MaxQuestionChars int

	// MaxCitations caps the sources returned per answer.
	MaxCitations int

	// GenerationRetry bounds generation calls.
	GenerationRetry retry.Policy

	// CatalogPath is the SQLite catalog location, or "" when disabled.
	CatalogPath string
}

// PipelineFromEnv resolves the pipeline settings from environment variables,
// applying defaults and validating the result.
//
// Environment variables:
//
//	INDEX_BACKEND (memory | qdrant, default: memory), INDEX_SNAPSHOT_PATH
//	  (default: ~/.groundqa/index.bin for memory)
//	QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION (default: groundqa),
//	  QDRANT_API_KEY, QDRANT_TLS
//	CHUNK_SIZE (1000), CHUNK_OVERLAP (200), CHUNK_STRIP_BOILERPLATE
//	INGEST_CONCURRENCY (4)
//	CRAWL_MAX_DEPTH (0), CRAWL_MAX_PAGES (200), CRAWL_DELAY
//	RETRIEVAL_TOP_K (5), RETRIEVAL_MIN_SCORE (0.35)
//	ANSWER_MAX_CONTEXT_CHARS (6000), ANSWER_MAX_PROMPT_TOKENS (6000)
//	ANSWER_MAX_QUESTION_CHARS (500), ANSWER_MAX_CITATIONS (3)
//	GENERATION_TIMEOUT, RETRY_ATTEMPTS, RETRY_INITIAL_BACKOFF, RETRY_MAX_BACKOFF
//	GROUNDQA_CATALOG_DB (default: ~/.groundqa/catalog.db, "disabled" to turn off)
func PipelineFromEnv() (*Pipeline, error) {
	var errs []error
	intVar := func(key string, fallback int) int {
		v := os.Getenv(key)
		if v == "" {
			return fallback
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return fallback
		}
		return i
	}
	floatVar := func(key string, fallback float64) float64 {
		v := os.Getenv(key)
		if v == "" {
			return fallback
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", key, v))
			return fallback
		}
		return f
	}
	durationVar := func(key string) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return 0
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", key, v))
			return 0
		}
		return d
	}

	p := &Pipeline{
		Index: rag.IndexConfig{
			Backend:      strings.ToLower(getEnvOrDefault("INDEX_BACKEND", rag.BackendMemory)),
			SnapshotPath: os.Getenv("INDEX_SNAPSHOT_PATH"),
			Qdrant: rag.QdrantConfig{
				Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
				Port:       intVar("QDRANT_PORT", 6334),
				Collection: getEnvOrDefault("QDRANT_COLLECTION", "groundqa"),
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				UseTLS:     os.Getenv("QDRANT_TLS") == "true",
			},
		},
		Ingestion: ingestion.Config{
			Chunker: ingestion.ChunkerConfig{
				ChunkSize:    intVar("CHUNK_SIZE", ingestion.DefaultChunkSize),
				ChunkOverlap: intVar("CHUNK_OVERLAP", ingestion.DefaultChunkOverlap),
			},
			StripBoilerplate: os.Getenv("CHUNK_STRIP_BOILERPLATE") == "true",
			Concurrency:      intVar("INGEST_CONCURRENCY", ingestion.DefaultConcurrency),
		},
		Fetch: extract.FetchConfig{
			MaxDepth: intVar("CRAWL_MAX_DEPTH", 0),
			MaxPages: intVar("CRAWL_MAX_PAGES", 200),
			Delay:    durationVar("CRAWL_DELAY"),
		},
		TopK:            intVar("RETRIEVAL_TOP_K", rag.DefaultTopK),
		MinScore:        float32(floatVar("RETRIEVAL_MIN_SCORE", float64(rag.DefaultMinScore))),
		MaxContextChars: intVar("ANSWER_MAX_CONTEXT_CHARS", rag.DefaultMaxContextLength),
		MaxPromptTokens: intVar("ANSWER_MAX_PROMPT_TOKENS", budget.DefaultMaxPromptTokens),
		GenerationRetry: retry.PolicyFromEnv("GENERATION_TIMEOUT"),

		MaxQuestionChars: intVar("ANSWER_MAX_QUESTION_CHARS", qa.DefaultMaxQuestionLength),
		MaxCitations:     intVar("ANSWER_MAX_CITATIONS", qa.DefaultMaxCitations),
	}

	if p.Index.Backend == rag.BackendMemory && p.Index.SnapshotPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			p.Index.SnapshotPath = filepath.Join(home, ".groundqa", "index.bin")
		}
	}

	switch dbPath := os.Getenv("GROUNDQA_CATALOG_DB"); dbPath {
	case catalogDisabled:
	case "":
		path, err := catalog.DefaultDBPath()
		if err != nil {
			errs = append(errs, err)
		}
		p.CatalogPath = path
	default:
		p.CatalogPath = dbPath
	}

	if err := p.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: invalid pipeline settings: %w", errors.Join(errs...))
	}
	return p, nil
}

// Validate checks the settings for values the pipeline cannot run with.
func (p *Pipeline) Validate() error {
	var errs []error
	switch p.Index.Backend {
	case rag.BackendMemory, rag.BackendQdrant:
	default:
		errs = append(errs, fmt.Errorf("INDEX_BACKEND: unsupported backend %q (supported: memory, qdrant)", p.Index.Backend))
	}
	if p.Ingestion.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE: must be positive, got %d", p.Ingestion.Chunker.ChunkSize))
	}
	if p.Ingestion.Chunker.ChunkOverlap < 0 || p.Ingestion.Chunker.ChunkOverlap >= p.Ingestion.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP: must be in [0, CHUNK_SIZE), got %d", p.Ingestion.Chunker.ChunkOverlap))
	}
	if p.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K: must be positive, got %d", p.TopK))
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_MIN_SCORE: must be in [0, 1], got %v", p.MinScore))
	}
	if p.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("ANSWER_MAX_CONTEXT_CHARS: must be positive, got %d", p.MaxContextChars))
	}
	if p.MaxPromptTokens <= 0 {
		errs = append(errs, fmt.Errorf("ANSWER_MAX_PROMPT_TOKENS: must be positive, got %d", p.MaxPromptTokens))
	}
	if p.MaxQuestionChars <= 0 {
		errs = append(errs, fmt.Errorf("ANSWER_MAX_QUESTION_CHARS: must be positive, got %d", p.MaxQuestionChars))
	}
	if p.MaxCitations <= 0 {
		errs = append(errs, fmt.Errorf("ANSWER_MAX_CITATIONS: must be positive, got %d", p.MaxCitations))
	}
	return errors.Join(errs...)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
