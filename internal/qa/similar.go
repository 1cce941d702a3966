package qa

import (
	"strings"
	"unicode/utf8"

	"github.com/54b3r/groundqa-go/internal/rag"
)

const (
	minSuggestionChars = 10
	maxSuggestionChars = 100
)

// questionWords open sentences that read as questions even without a
// question mark, as in FAQ headings.
var questionWords = map[string]bool{
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"which": true, "who": true, "can": true, "do": true, "does": true,
	"is": true, "are": true, "should": true,
}

// similarQuestions picks up to n question-like sentences from the text of
// the top n hits, skipping the asked question itself and duplicates.
func similarQuestions(query string, hits []rag.SearchHit, n int) []string {
	out := []string{}
	if n <= 0 {
		return out
	}
	seen := map[string]bool{foldQuestion(query): true}
	for _, h := range hits[:min(n, len(hits))] {
		for _, sentence := range sentences(h.Payload.Text) {
			if !looksLikeQuestion(sentence) {
				continue
			}
			key := foldQuestion(sentence)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, sentence)
			if len(out) == n {
				return out
			}
		}
	}
	return out
}

// sentences splits text after '.', '?', '!' and line breaks.
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		switch r {
		case '.', '?', '!', '\n':
			if s := cleanSentence(text[start : i+utf8.RuneLen(r)]); s != "" {
				out = append(out, s)
			}
			start = i + utf8.RuneLen(r)
		}
	}
	if s := cleanSentence(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func cleanSentence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Q:", "Q.", "Question:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return strings.TrimRight(s, ".!")
}

func looksLikeQuestion(s string) bool {
	n := utf8.RuneCountInString(s)
	if n <= minSuggestionChars || n >= maxSuggestionChars {
		return false
	}
	if strings.HasSuffix(s, "?") {
		return true
	}
	first, _, _ := strings.Cut(s, " ")
	return questionWords[strings.ToLower(first)]
}

func foldQuestion(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimRight(s, "?.! ")), " "))
}
