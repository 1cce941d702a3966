package extract

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleCaser renders slug words as a title.
var titleCaser = cases.Title(language.English)

// skipLinkPatterns are link targets a crawl never follows.
var skipLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.(pdf|docx?|zip|rar|png|jpe?g|gif|svg)$`),
	regexp.MustCompile(`(?i)/(login|register|signup|download|print)(/|$)`),
	regexp.MustCompile(`(?i)/api/`),
}

// TitleFromOrigin derives a readable title from a file path or URL when the
// source carries none. For URLs it uses the last path segment, falling back
// to the host; for files the base name without extension.
//
// Examples:
//
//	docs/reset-trading-pin.md               → "Reset Trading Pin"
//	https://example.com/support/fund_withdrawal → "Fund Withdrawal"
//	https://example.com/                    → "example.com"
func TitleFromOrigin(origin string) string {
	var base string
	if isURL(origin) {
		u, err := url.Parse(origin)
		if err != nil {
			return origin
		}
		segments := trimSegments(u.Path)
		if len(segments) == 0 {
			return u.Hostname()
		}
		base = segments[len(segments)-1]
		base = strings.TrimSuffix(base, path.Ext(base))
	} else {
		base = filepath.Base(origin)
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return origin
	}
	return titleCaser.String(strings.Join(words, " "))
}

// canonicalURL strips the fragment and query string.
func canonicalURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawQuery = ""
	return c.String()
}

// shouldFollow reports whether a discovered link stays under root and is not
// a download or account page.
func shouldFollow(root, link string) bool {
	if !strings.HasPrefix(link, root) {
		return false
	}
	for _, re := range skipLinkPatterns {
		if re.MatchString(link) {
			return false
		}
	}
	return true
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
