package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/54b3r/groundqa-go/internal/rag"
	"github.com/54b3r/groundqa-go/internal/retry"
)

const (
	// DefaultMaxInputChars is the input length beyond which text is truncated
	// before embedding.
	DefaultMaxInputChars = 8000

	// DefaultBatchSize is the number of texts sent per backend call.
	DefaultBatchSize = 32
)

// Versioned wraps a raw backend and returns vectors tagged with the model
// version that produced them. It truncates overlong input, checks the output
// dimension, and retries backend failures with bounded backoff. Every
// backend call, retries included, waits on the optional rate limiter.
type Versioned struct {
	backend    rag.Embedder
	tag        string
	dimensions int
	maxInput   int
	batchSize  int
	policy     retry.Policy
	limiter    *rate.Limiter
}

// VersionedConfig configures a Versioned embedder.
type VersionedConfig struct {
	// Backend is the backend name used in the model tag (e.g. "ollama").
	Backend string
	// Model is the backend model name used in the model tag.
	Model string
	// Dimensions is the expected vector length.
	Dimensions int
	// MaxInputChars truncates longer inputs. Defaults to 8000.
	MaxInputChars int
	// BatchSize caps texts per backend call. Defaults to 32.
	BatchSize int
	// Retry bounds backend retries.
	Retry retry.Policy
	// RequestsPerSecond caps backend calls across all callers sharing this
	// embedder. Zero means unlimited.
	RequestsPerSecond float64
}

// NewVersioned wraps backend.
func NewVersioned(backend rag.Embedder, cfg VersionedConfig) (*Versioned, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	v := &Versioned{
		backend:    backend,
		tag:        ModelTag(cfg.Backend, cfg.Model, cfg.Dimensions),
		dimensions: cfg.Dimensions,
		maxInput:   cfg.MaxInputChars,
		batchSize:  cfg.BatchSize,
		policy:     cfg.Retry,
	}
	if cfg.RequestsPerSecond > 0 {
		v.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return v, nil
}

// ModelTag formats the version tag stored with every vector.
func ModelTag(backend, model string, dimensions int) string {
	return fmt.Sprintf("%s/%s@%d", backend, model, dimensions)
}

// Model returns the version tag.
func (v *Versioned) Model() string { return v.tag }

// Dimensions returns the vector length.
func (v *Versioned) Dimensions() int { return v.dimensions }

// EmbedText embeds a single text.
func (v *Versioned) EmbedText(ctx context.Context, text string) (rag.Vector, error) {
	vecs, err := v.EmbedBatch(ctx, []string{text})
	if err != nil {
		return rag.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order, splitting them into backend-sized
// batches. Failures are returned as *rag.EmbeddingServiceError.
func (v *Versioned) EmbedBatch(ctx context.Context, texts []string) ([]rag.Vector, error) {
	out := make([]rag.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += v.batchSize {
		end := min(start+v.batchSize, len(texts))
		vecs, err := v.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (v *Versioned) embedBatch(ctx context.Context, texts []string) ([]rag.Vector, error) {
	inputs := make([]string, len(texts))
	truncated := make([]bool, len(texts))
	for i, t := range texts {
		inputs[i], truncated[i] = truncate(t, v.maxInput)
	}

	var raw [][]float32
	attempts, err := retry.Do(ctx, v.policy, func(ctx context.Context) error {
		if v.limiter != nil {
			if err := v.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		res, err := v.backend.Embed(ctx, inputs)
		if err != nil {
			if !retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(res) != len(inputs) {
			return retry.Permanent(fmt.Errorf("backend returned %d vectors for %d inputs", len(res), len(inputs)))
		}
		for i, r := range res {
			if len(r) != v.dimensions {
				return retry.Permanent(fmt.Errorf("vector %d: %w: got %d, want %d", i, rag.ErrDimensionMismatch, len(r), v.dimensions))
			}
		}
		raw = res
		return nil
	})
	if err != nil {
		return nil, &rag.EmbeddingServiceError{Model: v.tag, Attempts: attempts, Err: err}
	}

	out := make([]rag.Vector, len(raw))
	for i, r := range raw {
		out[i] = rag.Vector{Values: r, Model: v.tag, Truncated: truncated[i]}
	}
	return out, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
