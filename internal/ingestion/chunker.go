package ingestion

import (
	"crypto/sha256"
	"fmt"
	"unicode"

	"github.com/google/uuid"

	"github.com/54b3r/groundqa-go/internal/rag"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 200
)

// chunkNamespace seeds the UUIDv5 chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("groundqa:chunk"))

// ChunkerConfig controls chunk boundaries.
type ChunkerConfig struct {
	// ChunkSize is the maximum span length in characters.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters chunk i+1 repeats from the end
	// of chunk i. Defaults to 200 if zero; values >= ChunkSize fall back to
	// ChunkSize/5.
	ChunkOverlap int

	// BoundaryWindow is how far before the hard limit the chunker looks for
	// a paragraph or sentence boundary. Defaults to ChunkSize/5.
	BoundaryWindow int
}

// Chunker splits normalized documents into overlapping spans.
type Chunker struct {
	normalizer *Normalizer
	size       int
	overlap    int
	window     int
}

// NewChunker returns a Chunker with defaults applied to cfg. A nil normalizer
// uses one without boilerplate stripping.
func NewChunker(cfg ChunkerConfig, normalizer *Normalizer) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = min(DefaultChunkOverlap, cfg.ChunkSize/5)
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.BoundaryWindow <= 0 {
		cfg.BoundaryWindow = cfg.ChunkSize / 5
	}
	if normalizer == nil {
		normalizer = &Normalizer{}
	}
	return &Chunker{
		normalizer: normalizer,
		size:       cfg.ChunkSize,
		overlap:    cfg.ChunkOverlap,
		window:     cfg.BoundaryWindow,
	}
}

// Size returns the effective maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the effective overlap length.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk normalizes doc and splits it into spans that cover the whole text in
// order, each at most Size characters long, consecutive spans sharing exactly
// Overlap characters. A document that normalizes to nothing returns
// rag.ErrEmptyDocument; unreadable text returns a *rag.IngestionError.
func (c *Chunker) Chunk(doc rag.Document) ([]rag.Chunk, error) {
	doc, err := c.Prepare(doc)
	if err != nil {
		return nil, err
	}
	return c.Split(doc), nil
}

// Prepare fills in a missing document ID and replaces doc.Text with its
// normalized form.
func (c *Chunker) Prepare(doc rag.Document) (rag.Document, error) {
	if doc.ID == "" {
		doc.ID = DocumentID(doc.Origin)
	}
	text, err := c.normalizer.Normalize(doc.Text)
	if err != nil {
		return doc, &rag.IngestionError{DocumentID: doc.ID, Origin: doc.Origin, Err: err}
	}
	if text == "" {
		return doc, rag.ErrEmptyDocument
	}
	doc.Text = text
	return doc, nil
}

// Split chunks an already prepared document.
func (c *Chunker) Split(doc rag.Document) []rag.Chunk {
	runes := []rune(doc.Text)
	spans := c.split(runes)
	chunks := make([]rag.Chunk, 0, len(spans))
	for seq, s := range spans {
		chunks = append(chunks, rag.Chunk{
			ID:         ChunkID(doc.ID, seq, s.start, s.end),
			DocumentID: doc.ID,
			Title:      doc.Title,
			Origin:     doc.Origin,
			Text:       string(runes[s.start:s.end]),
			Start:      s.start,
			End:        s.end,
			Seq:        seq,
		})
	}
	return chunks
}

type span struct{ start, end int }

func (c *Chunker) split(runes []rune) []span {
	n := len(runes)
	var spans []span
	start := 0
	for n-start > c.size {
		end := c.cut(runes, start)
		spans = append(spans, span{start, end})
		start = end - c.overlap
	}
	return append(spans, span{start, n})
}

// cut picks the end of the span starting at start. It prefers the last
// paragraph break, then the last sentence end, inside the boundary window,
// and otherwise cuts at the hard limit. Any accepted end leaves the next
// span starting after start.
func (c *Chunker) cut(runes []rune, start int) int {
	hard := start + c.size
	lo := max(hard-c.window, start+c.overlap+1)

	for i := hard; i >= lo; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hard; i >= lo; i-- {
		if i < len(runes) && isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return hard
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	}
	return false
}

// ChunkID derives a stable UUID for a span of a document so re-ingesting
// unchanged text yields identical ids.
func ChunkID(documentID string, seq, start, end int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d:%d-%d", documentID, seq, start, end))).String()
}

// DocumentID generates a deterministic document id from its origin.
func DocumentID(origin string) string {
	h := sha256.Sum256([]byte(origin))
	return fmt.Sprintf("%x", h[:16])
}
