package ingestion

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/groundqa-go/internal/catalog"
	"github.com/54b3r/groundqa-go/internal/embedder"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// countingEmbedder wraps a hash-backed Versioned embedder, counts batches and
// fails any batch containing the word "POISON".
type countingEmbedder struct {
	*embedder.Versioned
	calls atomic.Int32
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]rag.Vector, error) {
	c.calls.Add(1)
	for _, t := range texts {
		if strings.Contains(t, "POISON") {
			return nil, errors.New("backend rejected input")
		}
	}
	return c.Versioned.EmbedBatch(ctx, texts)
}

func newTestEmbedder(t *testing.T, model string) *countingEmbedder {
	t.Helper()
	v, err := embedder.NewVersioned(embedder.NewHashEmbedder(64), embedder.VersionedConfig{
		Backend:    embedder.BackendHash,
		Model:      model,
		Dimensions: 64,
	})
	require.NoError(t, err)
	return &countingEmbedder{Versioned: v}
}

type fixture struct {
	emb     *countingEmbedder
	index   *rag.MemoryIndex
	catalog *catalog.Store
	p       *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emb := newTestEmbedder(t, "hash-v1")
	idx, err := rag.NewMemoryIndex(emb.Model(), emb.Dimensions())
	require.NoError(t, err)
	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	p, err := NewPipeline(emb, idx, cat, &Config{Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40}})
	require.NoError(t, err)
	return &fixture{emb: emb, index: idx, catalog: cat, p: p}
}

func corpus() []rag.Document {
	return []rag.Document{
		{Origin: "faq/pin.md", Title: "Reset PIN", Text: "To reset your trading PIN, open Settings and choose Security. " + longText(8)},
		{Origin: "faq/fees.md", Title: "Fees", Text: "Withdrawals to a linked bank account are free of charge."},
		{Origin: "faq/empty.md", Title: "Empty", Text: "  \n\n  "},
	}
}

func TestPipeline_IngestIndexesAndSkipsEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var outcomes []Outcome
	sum, err := f.p.Ingest(ctx, corpus(), Options{Done: func(_ rag.Document, o Outcome) { outcomes = append(outcomes, o) }})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.DocumentsIndexed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Empty(t, sum.Failures)
	assert.Len(t, outcomes, 3)

	info, err := f.index.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum.ChunksIndexed, info.Entries)
	assert.Greater(t, info.Entries, 2)

	docs, err := f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "faq/fees.md", docs[0].Origin)
	assert.Equal(t, 1, docs[0].ChunkCount)

	meta, ok, err := f.catalog.IndexMeta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.emb.Model(), meta.Model)
	assert.Equal(t, 200, meta.ChunkSize)
	assert.Equal(t, 40, meta.ChunkOverlap)
}

func TestPipeline_WarnsOnEmptyDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.NewWriter(&buf, "debug", "text"))
	var progress []string
	sum, err := f.p.Ingest(ctx, corpus(), Options{Progress: func(msg string) { progress = append(progress, msg) }})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "ingestion: empty document skipped")
	assert.Contains(t, out, "origin=faq/empty.md")
	assert.Contains(t, progress, "skipped faq/empty.md (empty)")
}

func TestPipeline_ReingestIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.p.Ingest(ctx, corpus(), Options{})
	require.NoError(t, err)
	calls := f.emb.calls.Load()
	before, err := f.index.Info(ctx)
	require.NoError(t, err)

	second, err := f.p.Ingest(ctx, corpus(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.DocumentsIndexed)
	assert.Equal(t, first.DocumentsIndexed, second.Unchanged)
	assert.Equal(t, calls, f.emb.calls.Load(), "unchanged documents must not be re-embedded")

	forced, err := f.p.Ingest(ctx, corpus(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, first.DocumentsIndexed, forced.DocumentsIndexed)

	after, err := f.index.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Entries, after.Entries)
}

func TestPipeline_ChangedDocumentReplacesChunks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	docs := corpus()
	_, err := f.p.Ingest(ctx, docs, Options{})
	require.NoError(t, err)

	docs[0].Text = "To reset your trading PIN, call support."
	sum, err := f.p.Ingest(ctx, docs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsIndexed)
	assert.Equal(t, 1, sum.Unchanged)

	info, err := f.index.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entries, "old chunks of the changed document must be gone")
}

func TestPipeline_FailureDoesNotStopRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	docs := append(corpus(), rag.Document{Origin: "faq/bad.md", Text: "POISON pill"})
	sum, err := f.p.Ingest(ctx, docs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.DocumentsIndexed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "faq/bad.md", sum.Failures[0].Origin)

	var ingErr *rag.IngestionError
	assert.True(t, errors.As(sum.Failures[0].Unwrap(), &ingErr))

	_, ok, err := f.catalog.Get(ctx, DocumentID("faq/bad.md"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipeline_ModelMismatchRequiresRebuild(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.p.Ingest(ctx, corpus(), Options{})
	require.NoError(t, err)

	other := newTestEmbedder(t, "hash-v2")
	idx, err := rag.NewMemoryIndex(other.Model(), other.Dimensions())
	require.NoError(t, err)
	p, err := NewPipeline(other, idx, f.catalog, &Config{})
	require.NoError(t, err)

	_, err = p.Ingest(ctx, corpus(), Options{})
	assert.True(t, errors.Is(err, rag.ErrModelMismatch))

	sum, err := p.Ingest(ctx, corpus(), Options{Rebuild: true})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.DocumentsIndexed)

	meta, _, err := f.catalog.IndexMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.Model(), meta.Model)
}

func TestPipeline_Prune(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.p.Ingest(ctx, corpus(), Options{})
	require.NoError(t, err)

	sum, err := f.p.Ingest(ctx, corpus()[:1], Options{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pruned)

	docs, err := f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "faq/pin.md", docs[0].Origin)

	hits, err := f.index.Search(ctx, mustEmbed(t, f.emb, "withdrawals bank account free"), 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "faq/fees.md", h.Payload.Origin)
	}
}

func TestPipeline_PersistsMemorySnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	emb := newTestEmbedder(t, "hash-v1")
	path := filepath.Join(t.TempDir(), "index.gqa")
	cfg := rag.IndexConfig{Backend: rag.BackendMemory, SnapshotPath: path}

	idx, err := rag.OpenIndex(ctx, cfg, emb.Model(), emb.Dimensions())
	require.NoError(t, err)
	p, err := NewPipeline(emb, idx, nil, nil)
	require.NoError(t, err)
	sum, err := p.Ingest(ctx, corpus(), Options{})
	require.NoError(t, err)

	reopened, err := rag.OpenIndex(ctx, cfg, emb.Model(), emb.Dimensions())
	require.NoError(t, err)
	info, err := reopened.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum.ChunksIndexed, info.Entries)
}

func TestNewPipeline_RejectsNilDependencies(t *testing.T) {
	t.Parallel()
	emb := newTestEmbedder(t, "hash-v1")
	idx, err := rag.NewMemoryIndex(emb.Model(), emb.Dimensions())
	require.NoError(t, err)

	_, err = NewPipeline(nil, idx, nil, nil)
	assert.Error(t, err)
	_, err = NewPipeline(emb, nil, nil, nil)
	assert.Error(t, err)
}

func mustEmbed(t *testing.T, e *countingEmbedder, text string) rag.Vector {
	t.Helper()
	v, err := e.EmbedText(context.Background(), text)
	require.NoError(t, err)
	return v
}
