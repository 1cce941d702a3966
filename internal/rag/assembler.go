package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxContextLength is the context budget in characters used when the
// caller passes a non-positive budget.
const DefaultMaxContextLength = 6000

// passageSeparator joins rendered passages.
const passageSeparator = "\n\n"

// Passage is one contiguous span of a document placed in the context block,
// possibly merged from several adjacent or overlapping chunks.
type Passage struct {
	// Marker is the citation marker, e.g. "[1]".
	Marker string

	DocumentID string
	Title      string
	Origin     string

	// ChunkIDs lists every chunk merged into this passage.
	ChunkIDs []string

	// Text is the passage content.
	Text string

	// Score is the highest similarity among the merged chunks.
	Score float32

	// Start and End are rune offsets of the passage in its document.
	Start int
	End   int
}

// Citation returns the attribution for this passage.
func (p Passage) Citation() Citation {
	return Citation{
		Marker:     p.Marker,
		DocumentID: p.DocumentID,
		Title:      p.Title,
		Origin:     p.Origin,
		ChunkIDs:   append([]string(nil), p.ChunkIDs...),
	}
}

// header is the first line of a rendered passage.
func (p Passage) header() string {
	title := p.Title
	if title == "" {
		title = p.DocumentID
	}
	if p.Origin != "" && p.Origin != title {
		return fmt.Sprintf("%s %s (%s)", p.Marker, title, p.Origin)
	}
	return fmt.Sprintf("%s %s", p.Marker, title)
}

func (p Passage) render() string {
	return p.header() + "\n" + p.Text
}

// ContextBlock is the ordered, budget-bounded set of passages handed to the
// generation backend.
type ContextBlock struct {
	Passages []Passage

	// Length is the rendered length in characters.
	Length int
}

// Empty reports whether the block holds no passages.
func (b ContextBlock) Empty() bool { return len(b.Passages) == 0 }

// Render formats the block as marker-prefixed passages.
func (b ContextBlock) Render() string {
	parts := make([]string, len(b.Passages))
	for i, p := range b.Passages {
		parts[i] = p.render()
	}
	return strings.Join(parts, passageSeparator)
}

// Citations returns the attribution for every passage in order.
func (b ContextBlock) Citations() []Citation {
	out := make([]Citation, len(b.Passages))
	for i, p := range b.Passages {
		out[i] = p.Citation()
	}
	return out
}

// Assembler turns retrieval hits into a ContextBlock.
type Assembler struct{}

// NewAssembler returns an Assembler.
func NewAssembler() *Assembler { return &Assembler{} }

// Assemble orders hits by score, merges hits from the same document whose
// spans overlap or touch, and appends passages until the next one would
// exceed maxContextLength characters once rendered. When the first passage
// alone is too long it is truncated to fit. The output is deterministic for
// identical input.
func (a *Assembler) Assemble(result RetrievalResult, maxContextLength int) ContextBlock {
	if maxContextLength <= 0 {
		maxContextLength = DefaultMaxContextLength
	}
	hits := append([]SearchHit(nil), result.Hits...)
	SortHits(hits)

	passages := mergeHits(hits)

	var block ContextBlock
	for i := range passages {
		p := passages[i]
		p.Marker = fmt.Sprintf("[%d]", len(block.Passages)+1)

		cost := utf8.RuneCountInString(p.render())
		if len(block.Passages) > 0 {
			cost += len(passageSeparator)
		}
		if block.Length+cost <= maxContextLength {
			block.Passages = append(block.Passages, p)
			block.Length += cost
			continue
		}
		if len(block.Passages) == 0 {
			// Truncate the most relevant passage rather than return nothing.
			room := maxContextLength - utf8.RuneCountInString(p.header()) - 1
			if room > 0 {
				runes := []rune(p.Text)
				p.Text = string(runes[:room])
				p.End = p.Start + room
				block.Passages = append(block.Passages, p)
				block.Length = utf8.RuneCountInString(p.render())
			}
		}
		break
	}
	return block
}

// mergeHits folds hits (already in score order) into passages. A hit joins
// an existing passage of the same document when their spans overlap or
// touch; merged passages keep the earliest position and the highest score.
func mergeHits(hits []SearchHit) []Passage {
	var passages []Passage
	for _, h := range hits {
		p := Passage{
			DocumentID: h.Payload.DocumentID,
			Title:      h.Payload.Title,
			Origin:     h.Payload.Origin,
			ChunkIDs:   []string{h.ChunkID},
			Text:       h.Payload.Text,
			Score:      h.Score,
			Start:      h.Payload.Start,
			End:        h.Payload.Start + utf8.RuneCountInString(h.Payload.Text),
		}

		target := -1
		for i := range passages {
			if touches(passages[i], p) {
				target = i
				break
			}
		}
		if target < 0 {
			passages = append(passages, p)
			continue
		}
		passages[target] = mergeSpans(passages[target], p)

		// A widened passage may now reach another passage of the same document.
		for {
			j := -1
			for i := range passages {
				if i != target && touches(passages[target], passages[i]) {
					j = i
					break
				}
			}
			if j < 0 {
				break
			}
			lo, hi := target, j
			if hi < lo {
				lo, hi = hi, lo
			}
			passages[lo] = mergeSpans(passages[lo], passages[hi])
			passages = append(passages[:hi], passages[hi+1:]...)
			target = lo
		}
	}
	return passages
}

func touches(a, b Passage) bool {
	return a.DocumentID == b.DocumentID && a.Start <= b.End && b.Start <= a.End
}

// mergeSpans joins two touching passages of one document. a keeps its place
// in the ordering.
func mergeSpans(a, b Passage) Passage {
	first, second := a, b
	if second.Start < first.Start {
		first, second = second, first
	}
	text := first.Text
	if second.End > first.End {
		tail := []rune(second.Text)
		text += string(tail[first.End-second.Start:])
	}

	out := a
	out.Start = first.Start
	out.End = max(first.End, second.End)
	out.Text = text
	out.Score = max(a.Score, b.Score)
	out.ChunkIDs = append(append([]string(nil), a.ChunkIDs...), b.ChunkIDs...)
	return out
}
