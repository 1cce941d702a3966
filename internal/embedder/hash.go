package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/54b3r/groundqa-go/internal/rag"
)

// DefaultHashDimensions is the vector size of the hash embedder.
const DefaultHashDimensions = 1024

// stopwords carry no topical signal and are dropped before hashing, so a
// question made only of function words embeds to the zero vector.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the is are was were be been being am of to in on for and or
		but what who whom whose how why when where which do does did doing i you he she my your his her
		it its this that these those can could should would may might must with by at from as me we our
		us about there their they them will shall has have had having not no nor if so than then into
		out up down any all some tell please also just very more most much many such only own same too
		s t don now here get got`) {
		stopwords[w] = struct{}{}
	}
}

// HashEmbedder is a deterministic, offline rag.Embedder. It hashes content
// words (and adjacent word pairs) into a fixed number of buckets and L2
// normalizes the counts, so texts sharing vocabulary score high and texts
// with no shared content words score zero. It needs no network access and is
// used for local runs and tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given size.
// Non-positive dimensions use DefaultHashDimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes each text into a normalized bag-of-words vector.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dimensions)
	terms := contentTerms(text)
	for i, term := range terms {
		v[e.bucket(term)]++
		if i > 0 {
			v[e.bucket(terms[i-1]+" "+term)] += 0.5
		}
	}
	return rag.Normalize(v)
}

func (e *HashEmbedder) bucket(term string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum64() % uint64(e.dimensions))
}

// contentTerms lowercases text, splits it on non-alphanumerics, drops
// stopwords and folds simple plurals.
func contentTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
		}
		terms = append(terms, w)
	}
	return terms
}
