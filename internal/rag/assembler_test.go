package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id, doc string, score float32, start int, text string) SearchHit {
	return SearchHit{
		ChunkID: id,
		Score:   score,
		Payload: Payload{
			DocumentID: doc,
			Title:      "Title " + doc,
			Text:       text,
			Start:      start,
			End:        start + utf8.RuneCountInString(text),
		},
	}
}

func TestAssemble_OrdersByScoreAndMarks(t *testing.T) {
	t.Parallel()
	res := RetrievalResult{Hits: []SearchHit{
		hit("c2", "d2", 0.5, 0, "second doc"),
		hit("c1", "d1", 0.9, 0, "first doc"),
	}}

	block := NewAssembler().Assemble(res, 1000)
	require.Len(t, block.Passages, 2)
	assert.Equal(t, "[1]", block.Passages[0].Marker)
	assert.Equal(t, "d1", block.Passages[0].DocumentID)
	assert.Equal(t, "[2]", block.Passages[1].Marker)
	assert.Equal(t, "d2", block.Passages[1].DocumentID)

	rendered := block.Render()
	assert.True(t, strings.HasPrefix(rendered, "[1] Title d1\nfirst doc"))
	assert.Equal(t, utf8.RuneCountInString(rendered), block.Length)
}

func TestAssemble_MergesOverlappingAndTouchingSpans(t *testing.T) {
	t.Parallel()
	// Document text: "abcdefghijklmnop"
	res := RetrievalResult{Hits: []SearchHit{
		hit("x1", "d", 0.8, 0, "abcdefgh"),
		hit("x2", "d", 0.9, 6, "ghijkl"),   // overlaps x1
		hit("x3", "d", 0.4, 12, "mnop"),    // touches x2
		hit("y1", "e", 0.7, 0, "other"),    // different doc
		hit("x4", "d", 0.6, 40, "faraway"), // disjoint
	}}

	block := NewAssembler().Assemble(res, 1000)
	require.Len(t, block.Passages, 3)

	p := block.Passages[0]
	assert.Equal(t, "d", p.DocumentID)
	assert.Equal(t, "abcdefghijklmnop", p.Text)
	assert.Equal(t, 0, p.Start)
	assert.Equal(t, 16, p.End)
	assert.InDelta(t, 0.9, p.Score, 1e-6)
	assert.ElementsMatch(t, []string{"x1", "x2", "x3"}, p.ChunkIDs)

	assert.Equal(t, "e", block.Passages[1].DocumentID)
	assert.Equal(t, "faraway", block.Passages[2].Text)
}

func TestAssemble_RespectsBudget(t *testing.T) {
	t.Parallel()
	var hits []SearchHit
	for i := 0; i < 20; i++ {
		hits = append(hits, hit(string(rune('a'+i)), string(rune('A'+i)), float32(20-i)/20, 0, strings.Repeat("word ", 40)))
	}
	res := RetrievalResult{Hits: hits}

	for _, budget := range []int{50, 300, 700, 2000} {
		block := NewAssembler().Assemble(res, budget)
		assert.LessOrEqual(t, utf8.RuneCountInString(block.Render()), budget, "budget %d", budget)
		assert.Equal(t, utf8.RuneCountInString(block.Render()), block.Length)
		assert.NotEmpty(t, block.Passages, "budget %d", budget)
	}
}

func TestAssemble_TruncatesOversizedFirstPassage(t *testing.T) {
	t.Parallel()
	res := RetrievalResult{Hits: []SearchHit{hit("a", "d", 0.9, 0, strings.Repeat("é", 500))}}

	block := NewAssembler().Assemble(res, 100)
	require.Len(t, block.Passages, 1)
	assert.Equal(t, 100, utf8.RuneCountInString(block.Render()))
	assert.True(t, utf8.ValidString(block.Passages[0].Text))
}

func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()
	res := RetrievalResult{Hits: []SearchHit{
		hit("b", "d1", 0.5, 0, "beta"),
		hit("a", "d2", 0.5, 0, "alpha"),
		hit("c", "d3", 0.7, 0, "gamma"),
	}}
	first := NewAssembler().Assemble(res, 500).Render()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, NewAssembler().Assemble(res, 500).Render())
	}
}

func TestAssemble_EmptyResult(t *testing.T) {
	t.Parallel()
	block := NewAssembler().Assemble(RetrievalResult{}, 500)
	assert.True(t, block.Empty())
	assert.Equal(t, "", block.Render())
}
