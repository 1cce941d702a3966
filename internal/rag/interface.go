// Package rag defines the retrieval-augmented answering core: the corpus data
// model, the vector index contract and its implementations, the retriever,
// and the context assembler. Backends (Qdrant, in-memory) satisfy the
// VectorIndex interface so the answering layer never depends on a specific
// storage engine.
package rag

import (
	"context"
	"time"
)

// Document is an immutable source unit produced by text extraction.
// Re-ingestion replaces a document wholesale; it is never mutated in place.
type Document struct {
	// ID is the stable document identifier. Derived from Origin when empty.
	ID string

	// Origin is the source path or URL the text was extracted from.
	Origin string

	// Title is the human-readable title used in citation markers.
	Title string

	// Text is the extracted plain text (not yet normalized).
	Text string

	// ContentType is the declared type of the raw source (e.g. "text/html").
	ContentType string

	// IngestedAt is when the document entered the pipeline.
	IngestedAt time.Time
}

// Chunk is a bounded contiguous span of exactly one document's normalized text.
type Chunk struct {
	// ID is a deterministic UUID derived from the document id and the span.
	ID string

	// DocumentID is the parent document.
	DocumentID string

	// Title and Origin are copied from the parent document for payloads.
	Title  string
	Origin string

	// Text is the span content.
	Text string

	// Start and End are rune offsets into the normalized document text.
	Start int
	End   int

	// Seq is the position of this chunk within its document.
	Seq int
}

// Vector is a dense embedding tagged with the model version that produced it.
// Vectors from different model tags are not comparable.
type Vector struct {
	// Values holds the embedding components.
	Values []float32

	// Model is the embedder's version tag (backend/model@dimensions).
	Model string

	// Truncated is set when the input exceeded the backend's maximum input
	// length and was cut before embedding.
	Truncated bool
}

// Payload is the data stored alongside a vector in the index.
type Payload struct {
	DocumentID string
	Title      string
	Origin     string
	Text       string
	Seq        int
	Start      int
	End        int
}

// IndexEntry is a single chunk vector plus payload.
type IndexEntry struct {
	ChunkID string
	Vector  Vector
	Payload Payload
}

// SearchHit is one nearest-neighbour result.
type SearchHit struct {
	ChunkID string
	// Score is the cosine similarity between the query and the stored vector.
	Score   float32
	Payload Payload
}

// IndexInfo describes the configuration and size of a vector index.
type IndexInfo struct {
	// Backend names the storage engine ("memory", "qdrant").
	Backend string
	// Model is the embedder version tag every stored vector was produced by.
	Model string
	// Dimensions is the fixed vector length of the index.
	Dimensions int
	// Entries is the number of stored chunk vectors.
	Entries int
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines, and each
// upserted entry must become visible atomically.
type VectorIndex interface {
	// Upsert stores or replaces entries keyed by chunk id.
	Upsert(ctx context.Context, entries ...IndexEntry) error

	// Delete removes entries by chunk id. Unknown ids are ignored.
	Delete(ctx context.Context, chunkIDs ...string) error

	// DeleteDocument removes every entry belonging to documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns at most k hits sorted by descending similarity.
	Search(ctx context.Context, query Vector, k int) ([]SearchHit, error)

	// Reset removes all entries, leaving an empty index with the same
	// model tag and dimension.
	Reset(ctx context.Context) error

	// Info reports the index configuration and entry count.
	Info(ctx context.Context) (IndexInfo, error)

	// Close releases any resources held by the index.
	Close() error
}

// Embedder is the raw embedding backend contract.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder embeds a single query into a tagged Vector. The versioned
// embedder in internal/embedder satisfies it.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) (Vector, error)
}

// Searcher is the high-level retrieval contract used by the answering layer.
type Searcher interface {
	// Retrieve returns the hits for query that clear minScore.
	Retrieve(ctx context.Context, query string, k int, minScore float32) (RetrievalResult, error)
}
