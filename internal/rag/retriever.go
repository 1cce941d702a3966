package rag

import (
	"context"
	"fmt"
)

const (
	// DefaultTopK is the number of hits requested when the caller passes k<=0.
	DefaultTopK = 5

	// DefaultMinScore is the relevance floor applied when the caller passes a
	// negative minScore.
	DefaultMinScore float32 = 0.35
)

// RetrievalResult is the transient, score-ordered outcome of one query.
// An empty Hits slice is the primary refusal signal.
type RetrievalResult struct {
	// Query is the original question text.
	Query string

	// Hits are the search hits at or above the relevance floor, ordered by
	// descending score.
	Hits []SearchHit

	// Dropped counts hits the index returned that fell below the floor.
	Dropped int
}

// Empty reports whether no hit cleared the relevance floor.
func (r RetrievalResult) Empty() bool { return len(r.Hits) == 0 }

// Retriever embeds a query and returns the relevant chunks from a VectorIndex.
type Retriever struct {
	// embedder converts query text to a tagged vector.
	embedder QueryEmbedder

	// index performs the similarity search.
	index VectorIndex
}

// NewRetriever constructs a Retriever from the given embedder and index.
func NewRetriever(embedder QueryEmbedder, index VectorIndex) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

// Retrieve embeds query, searches for its k nearest chunks and drops those
// scoring below minScore. k<=0 uses DefaultTopK and minScore<0 uses
// DefaultMinScore. A result with no hits is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float32) (RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if minScore < 0 {
		minScore = DefaultMinScore
	}
	result := RetrievalResult{Query: query}

	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return result, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return result, fmt.Errorf("rag: vector search failed: %w", err)
	}

	kept := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			result.Dropped++
			continue
		}
		kept = append(kept, h)
	}
	SortHits(kept)
	result.Hits = kept
	return result, nil
}
