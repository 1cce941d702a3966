package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/groundqa-go/internal/catalog"
)

// Source is one indexed document as listed to operators.
type Source struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Origin      string    `json:"origin"`
	ContentType string    `json:"content_type"`
	Chunks      int       `json:"chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// IndexStatus describes the vector index and how it was built.
type IndexStatus struct {
	Backend      string `json:"backend"`
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	Entries      int    `json:"entries"`
	Documents    int    `json:"documents"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

// HistoryEntry is one answered question.
type HistoryEntry struct {
	Question   string    `json:"question"`
	Grounded   bool      `json:"grounded"`
	Reason     string    `json:"reason"`
	Citations  int       `json:"citations"`
	DurationMS int64     `json:"duration_ms"`
	AskedAt    time.Time `json:"asked_at"`
}

// Sources lists the documents recorded in the catalog, ordered by origin.
// Without a catalog the list is empty.
func (s *Service) Sources(ctx context.Context) ([]Source, error) {
	out := []Source{}
	if s.catalog == nil {
		return out, nil
	}
	docs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("qa: list sources: %w", err)
	}
	for _, d := range docs {
		out = append(out, Source{
			ID:          d.ID,
			Title:       d.Title,
			Origin:      d.Origin,
			ContentType: d.ContentType,
			Chunks:      d.ChunkCount,
			IngestedAt:  d.IngestedAt.UTC(),
		})
	}
	return out, nil
}

// Status reports the index configuration and size.
func (s *Service) Status(ctx context.Context) (IndexStatus, error) {
	var st IndexStatus
	if s.index != nil {
		info, err := s.index.Info(ctx)
		if err != nil {
			return st, fmt.Errorf("qa: index info: %w", err)
		}
		st.Backend = info.Backend
		st.Model = info.Model
		st.Dimensions = info.Dimensions
		st.Entries = info.Entries
	}
	if s.catalog == nil {
		return st, nil
	}
	docs, err := s.catalog.List(ctx)
	if err != nil {
		return st, fmt.Errorf("qa: list sources: %w", err)
	}
	st.Documents = len(docs)
	meta, ok, err := s.catalog.IndexMeta(ctx)
	if err != nil {
		return st, fmt.Errorf("qa: index meta: %w", err)
	}
	if ok {
		st.ChunkSize = meta.ChunkSize
		st.ChunkOverlap = meta.ChunkOverlap
		if st.Model == "" {
			st.Model = meta.Model
			st.Dimensions = meta.Dimensions
		}
	}
	return st, nil
}

// History returns the n most recent questions, newest first.
func (s *Service) History(ctx context.Context, n int) ([]HistoryEntry, error) {
	out := []HistoryEntry{}
	if s.catalog == nil {
		return out, nil
	}
	queries, err := s.catalog.RecentQueries(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("qa: history: %w", err)
	}
	for _, q := range queries {
		out = append(out, toHistory(q))
	}
	return out, nil
}

func toHistory(q catalog.Query) HistoryEntry {
	return HistoryEntry{
		Question:   q.Question,
		Grounded:   q.Grounded,
		Reason:     q.Reason,
		Citations:  q.Citations,
		DurationMS: q.Duration.Milliseconds(),
		AskedAt:    q.CreatedAt.UTC(),
	}
}
