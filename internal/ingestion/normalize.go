package ingestion

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidEncoding is returned for text that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")

	// ErrBinaryContent is returned for text that looks like binary data.
	ErrBinaryContent = errors.New("text looks like binary content")
)

// maxControlRatio is the share of control runes above which text is treated
// as binary.
const maxControlRatio = 0.10

// DefaultBoilerplate matches footer lines common on scraped support pages.
var DefaultBoilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(©|\(c\)|copyright)[^\n]*?\d{4}[^\n]*`),
	regexp.MustCompile(`(?i)all rights reserved\.?`),
	regexp.MustCompile(`(?i)terms (and|&) conditions`),
	regexp.MustCompile(`(?i)privacy policy`),
	regexp.MustCompile(`(?i)cookie policy`),
}

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// Normalizer canonicalizes extracted text before chunking.
type Normalizer struct {
	// Boilerplate patterns are removed from the text. Nil keeps everything.
	Boilerplate []*regexp.Regexp
}

// Normalize rejects invalid or binary text, applies Unicode NFC, unifies line
// endings, removes boilerplate, collapses horizontal whitespace within lines
// and reduces runs of blank lines to a single paragraph break. The result may
// be empty.
func (n *Normalizer) Normalize(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidEncoding
	}
	if looksBinary(text) {
		return "", ErrBinaryContent
	}

	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, text)

	for _, re := range n.Boilerplate {
		text = re.ReplaceAllString(text, "")
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

func looksBinary(text string) bool {
	if strings.IndexByte(text, 0) >= 0 {
		return true
	}
	var total, control int
	for _, r := range text {
		total++
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' && r != '\f' {
			control++
		}
	}
	return total > 0 && float64(control)/float64(total) > maxControlRatio
}
