// Package ingestion implements the corpus ingestion pipeline.
// It normalizes extracted documents, chunks them into overlapping spans,
// embeds each chunk, and replaces the document's entries in the vector
// index. An optional catalog records what was indexed so re-runs skip
// unchanged documents and refuse to mix embedding models.
// This pipeline is invoked by the `groundqa ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/groundqa-go/internal/catalog"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 4

// Embedder is the embedding surface the pipeline needs. It is satisfied by
// *embedder.Versioned.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]rag.Vector, error)
	Model() string
	Dimensions() int
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunker controls chunk size, overlap and boundary search.
	Chunker ChunkerConfig

	// StripBoilerplate removes DefaultBoilerplate lines during normalization.
	StripBoilerplate bool

	// Concurrency is the number of documents embedded in parallel.
	// Defaults to DefaultConcurrency if zero. Backend call pacing is the
	// embedder's concern (EMBEDDING_RPS).
	Concurrency int
}

// Options tune a single Ingest run.
type Options struct {
	// Rebuild clears the index and catalog before ingesting and allows a
	// change of embedding model.
	Rebuild bool

	// Prune removes catalog documents that are not part of this run.
	Prune bool

	// Force re-embeds documents whose content hash is unchanged.
	Force bool

	// Progress receives human-readable status lines. May be nil.
	Progress func(msg string)

	// Done is called once per document after it has been handled. May be nil.
	Done func(doc rag.Document, outcome Outcome)
}

// Outcome is what happened to one document.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Failure is a document that could not be ingested.
type Failure struct {
	DocumentID string `json:"document_id"`
	Origin     string `json:"origin"`
	Error      string `json:"error"`
	err        error
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error { return f.err }

// Summary reports the result of an Ingest run.
type Summary struct {
	DocumentsIndexed int           `json:"documents_indexed"`
	ChunksIndexed    int           `json:"chunks_indexed"`
	Unchanged        int           `json:"unchanged"`
	Skipped          int           `json:"skipped"`
	Pruned           int           `json:"pruned"`
	Failures         []Failure     `json:"failures,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

// Pipeline orchestrates the normalize → chunk → embed → upsert flow for a
// set of documents.
type Pipeline struct {
	// chunker normalizes and splits documents.
	chunker *Chunker

	// embedder converts chunk text into versioned vectors.
	embedder Embedder

	// index persists the embedded chunks.
	index rag.VectorIndex

	// catalog records indexed documents. May be nil.
	catalog *catalog.Store

	// concurrency is the resolved worker count.
	concurrency int
}

// NewPipeline constructs a Pipeline from the provided dependencies and
// config. cat may be nil, in which case every run re-embeds every document
// and Prune is unavailable.
func NewPipeline(emb Embedder, index rag.VectorIndex, cat *catalog.Store, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var normalizer Normalizer
	if cfg.StripBoilerplate {
		normalizer.Boilerplate = DefaultBoilerplate
	}

	return &Pipeline{
		chunker:     NewChunker(cfg.Chunker, &normalizer),
		embedder:    emb,
		index:       index,
		catalog:     cat,
		concurrency: concurrency,
	}, nil
}

// Chunker returns the pipeline's chunker.
func (p *Pipeline) Chunker() *Chunker { return p.chunker }

// Ingest indexes docs. Documents that fail to normalize or embed are
// reported in Summary.Failures and do not stop the run; index failures and
// embedding-model conflicts abort it with an error.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document, opts Options) (Summary, error) {
	started := time.Now()
	log := logging.FromContext(ctx)
	progress := opts.Progress
	if progress == nil {
		progress = func(string) {}
	}

	if err := p.prepareIndex(ctx, opts.Rebuild); err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary Summary
		seen    = make(map[string]struct{}, len(docs))
	)
	record := func(doc rag.Document, outcome Outcome, chunks int, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case OutcomeIndexed:
			summary.DocumentsIndexed++
			summary.ChunksIndexed += chunks
			progress(fmt.Sprintf("indexed %s (%d chunks)", doc.Origin, chunks))
		case OutcomeUnchanged:
			summary.Unchanged++
		case OutcomeSkipped:
			summary.Skipped++
			log.Warn("ingestion: empty document skipped", slog.String("origin", doc.Origin), slog.String("document_id", doc.ID))
			progress("skipped " + doc.Origin + " (empty)")
		case OutcomeFailed:
			summary.Failures = append(summary.Failures, Failure{
				DocumentID: doc.ID,
				Origin:     doc.Origin,
				Error:      err.Error(),
				err:        err,
			})
			progress(fmt.Sprintf("failed %s: %v", doc.Origin, err))
		}
		if opts.Done != nil {
			opts.Done(doc, outcome)
		}
	}

	docs = slices.Clone(docs)
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = DocumentID(docs[i].Origin)
		}
		seen[docs[i].ID] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, doc := range docs {
		g.Go(func() error {
			outcome, chunks, err := p.ingestOne(gctx, doc, opts.Force)
			var idxErr *rag.IndexError
			if errors.As(err, &idxErr) {
				return err
			}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			if outcome == OutcomeFailed {
				log.Warn("ingestion: document failed",
					slog.String("origin", doc.Origin),
					slog.String("error", err.Error()),
				)
			}
			record(doc, outcome, chunks, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("ingestion: aborted: %w", err)
	}

	if opts.Prune {
		pruned, err := p.prune(ctx, seen)
		if err != nil {
			return summary, err
		}
		summary.Pruned = pruned
		if pruned > 0 {
			progress(fmt.Sprintf("pruned %d documents no longer in the corpus", pruned))
		}
	}

	if err := rag.Flush(p.index); err != nil {
		return summary, fmt.Errorf("ingestion: %w", err)
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Origin < summary.Failures[j].Origin
	})
	summary.Duration = time.Since(started)

	log.Info("ingestion: run complete",
		slog.Int("documents_indexed", summary.DocumentsIndexed),
		slog.Int("chunks_indexed", summary.ChunksIndexed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("skipped", summary.Skipped),
		slog.Int("pruned", summary.Pruned),
		slog.Int("failed", len(summary.Failures)),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// prepareIndex refuses to mix embedding models and clears everything on
// rebuild.
func (p *Pipeline) prepareIndex(ctx context.Context, rebuild bool) error {
	if rebuild {
		if err := p.index.Reset(ctx); err != nil {
			return fmt.Errorf("ingestion: reset index: %w", err)
		}
		if p.catalog != nil {
			if err := p.catalog.Reset(ctx); err != nil {
				return fmt.Errorf("ingestion: reset catalog: %w", err)
			}
		}
	} else if err := CheckIndexModel(ctx, p.catalog, p.embedder.Model()); err != nil {
		return err
	}

	if p.catalog == nil {
		return nil
	}
	return p.catalog.SetIndexMeta(ctx, catalog.IndexMeta{
		Model:        p.embedder.Model(),
		Dimensions:   p.embedder.Dimensions(),
		ChunkSize:    p.chunker.Size(),
		ChunkOverlap: p.chunker.Overlap(),
	})
}

// CheckIndexModel fails with rag.ErrModelMismatch when the catalog records
// that the index was built by a model other than model. A nil catalog or one
// with no recorded build passes.
func CheckIndexModel(ctx context.Context, cat *catalog.Store, model string) error {
	if cat == nil {
		return nil
	}
	meta, ok, err := cat.IndexMeta(ctx)
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	if ok && meta.Model != model {
		return fmt.Errorf("ingestion: index was built with %q but embedder is %q, re-run ingest with --rebuild: %w",
			meta.Model, model, rag.ErrModelMismatch)
	}
	return nil
}

// ingestOne replaces one document's index entries. The returned error is
// the per-document failure, or a *rag.IndexError that should abort the run.
func (p *Pipeline) ingestOne(ctx context.Context, doc rag.Document, force bool) (Outcome, int, error) {
	prepared, err := p.chunker.Prepare(doc)
	if errors.Is(err, rag.ErrEmptyDocument) {
		return OutcomeSkipped, 0, nil
	}
	if err != nil {
		return OutcomeFailed, 0, err
	}

	hash := p.contentHash(prepared.Text)
	if p.catalog != nil && !force {
		prev, ok, err := p.catalog.Get(ctx, prepared.ID)
		if err != nil {
			return OutcomeFailed, 0, err
		}
		if ok && prev.ContentHash == hash {
			return OutcomeUnchanged, 0, nil
		}
	}

	chunks := p.chunker.Split(prepared)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return OutcomeFailed, 0, &rag.IngestionError{DocumentID: prepared.ID, Origin: prepared.Origin, Err: err}
	}
	if len(vectors) != len(chunks) {
		return OutcomeFailed, 0, &rag.IngestionError{
			DocumentID: prepared.ID,
			Origin:     prepared.Origin,
			Err:        fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	entries := make([]rag.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = rag.IndexEntry{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Payload: rag.Payload{
				DocumentID: c.DocumentID,
				Title:      c.Title,
				Origin:     c.Origin,
				Text:       c.Text,
				Seq:        c.Seq,
				Start:      c.Start,
				End:        c.End,
			},
		}
	}

	if err := p.index.DeleteDocument(ctx, prepared.ID); err != nil {
		return OutcomeFailed, 0, asIndexError("delete_document", err)
	}
	if err := p.index.Upsert(ctx, entries...); err != nil {
		return OutcomeFailed, 0, asIndexError("upsert", err)
	}

	if p.catalog != nil {
		ingestedAt := prepared.IngestedAt
		if ingestedAt.IsZero() {
			ingestedAt = time.Now().UTC()
		}
		err := p.catalog.Put(ctx, catalog.Document{
			ID:          prepared.ID,
			Origin:      prepared.Origin,
			Title:       prepared.Title,
			ContentType: prepared.ContentType,
			ContentHash: hash,
			ChunkCount:  len(chunks),
			IngestedAt:  ingestedAt,
		})
		if err != nil {
			return OutcomeFailed, 0, err
		}
	}
	return OutcomeIndexed, len(chunks), nil
}

// prune drops catalog documents that are not in seen from both the index
// and the catalog.
func (p *Pipeline) prune(ctx context.Context, seen map[string]struct{}) (int, error) {
	if p.catalog == nil {
		logging.FromContext(ctx).Warn("ingestion: prune requested without a catalog, skipping")
		return 0, nil
	}
	known, err := p.catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingestion: %w", err)
	}
	pruned := 0
	for _, d := range known {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		if err := p.index.DeleteDocument(ctx, d.ID); err != nil {
			return pruned, fmt.Errorf("ingestion: prune %s: %w", d.Origin, err)
		}
		if err := p.catalog.Delete(ctx, d.ID); err != nil {
			return pruned, fmt.Errorf("ingestion: prune %s: %w", d.Origin, err)
		}
		pruned++
	}
	return pruned, nil
}

// contentHash fingerprints normalized text together with the chunking
// parameters, so changing either re-indexes the document.
func (p *Pipeline) contentHash(text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d:", p.chunker.Size(), p.chunker.Overlap())
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func asIndexError(op string, err error) error {
	var idxErr *rag.IndexError
	if errors.As(err, &idxErr) {
		return err
	}
	return &rag.IndexError{Op: op, Err: err}
}
