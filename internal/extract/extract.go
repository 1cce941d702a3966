// Package extract turns source files and web pages into plain-text
// documents for ingestion. It reads .txt, .md, .html, .pdf, .docx and .xlsx
// files, walks directories, and fetches http(s) URLs, optionally following
// links below the start URL.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// Content types assigned to extracted documents.
const (
	TypePlain    = "text/plain"
	TypeMarkdown = "text/markdown"
	TypeHTML     = "text/html"
	TypePDF      = "application/pdf"
	TypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrUnsupported is returned for files whose extension has no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// errLowContent marks pages that are mostly navigation chrome.
var errLowContent = errors.New("page has no substantive content")

// extensions maps a lower-case file extension to its content type.
var extensions = map[string]string{
	".txt":      TypePlain,
	".text":     TypePlain,
	".rst":      TypePlain,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".html":     TypeHTML,
	".htm":      TypeHTML,
	".pdf":      TypePDF,
	".docx":     TypeDOCX,
	".xlsx":     TypeXLSX,
}

// ContentTypeFor returns the content type for path's extension and whether
// it is supported.
func ContentTypeFor(path string) (string, bool) {
	ct, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return ct, ok
}

// Result is the outcome of a Load call.
type Result struct {
	// Documents holds one entry per extracted file or page, in load order.
	Documents []rag.Document
	// Failures are sources that could not be read or parsed.
	Failures []*rag.IngestionError
	// Skipped lists pages dropped as navigation-only content.
	Skipped []string
}

// Loader reads documents from files, directories and URLs.
type Loader struct {
	// fetcher retrieves http(s) sources. Nil disables URL sources.
	fetcher *Fetcher
}

// NewLoader returns a Loader. A nil fetcher rejects URL sources.
func NewLoader(fetcher *Fetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// Load extracts every source. Files and pages that cannot be read are
// recorded in Result.Failures; a source path that does not exist is an error.
func (l *Loader) Load(ctx context.Context, sources ...string) (Result, error) {
	var res Result
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if isURL(src) {
			if l.fetcher == nil {
				return res, fmt.Errorf("extract: URL sources are disabled: %s", src)
			}
			if err := l.fetcher.Crawl(ctx, src, &res); err != nil {
				return res, err
			}
			continue
		}

		info, err := os.Stat(src)
		if err != nil {
			return res, fmt.Errorf("extract: %w", err)
		}
		if info.IsDir() {
			if err := l.loadDir(ctx, src, &res); err != nil {
				return res, err
			}
			continue
		}
		l.loadFile(src, info.ModTime(), &res)
	}
	return res, nil
}

// loadDir walks root in lexical order, extracting supported files and
// skipping hidden entries.
func (l *Loader) loadDir(ctx context.Context, root string, res *Result) error {
	log := logging.FromContext(ctx)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Failures = append(res.Failures, &rag.IngestionError{Origin: path, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := ContentTypeFor(path); !ok {
			log.Debug("extract: skipping unsupported file", slog.String("path", path))
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("extract: walk %s: %w", root, err)
	}

	sort.Strings(files)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		var modTime time.Time
		if info, err := os.Stat(path); err == nil {
			modTime = info.ModTime()
		}
		l.loadFile(path, modTime, res)
	}
	return nil
}

func (l *Loader) loadFile(path string, modTime time.Time, res *Result) {
	content, err := os.ReadFile(path)
	if err != nil {
		res.Failures = append(res.Failures, &rag.IngestionError{Origin: path, Err: err})
		return
	}
	doc, err := Extract(path, content)
	if err != nil {
		res.Failures = append(res.Failures, &rag.IngestionError{Origin: path, Err: err})
		return
	}
	doc.IngestedAt = modTime.UTC()
	res.Documents = append(res.Documents, doc)
}

// Extract converts the raw content of the file named name into a document.
// The document ID is left empty for the ingestion pipeline to derive.
func Extract(name string, content []byte) (rag.Document, error) {
	ct, ok := ContentTypeFor(name)
	if !ok {
		return rag.Document{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
	return extractAs(name, ct, content)
}

func extractAs(origin, contentType string, content []byte) (rag.Document, error) {
	doc := rag.Document{Origin: origin, ContentType: contentType}
	var err error
	switch contentType {
	case TypePlain:
		doc.Text = string(content)
	case TypeMarkdown:
		doc.Text = string(content)
		doc.Title = markdownTitle(doc.Text)
	case TypeHTML:
		var p page
		p, err = parseHTML(content, nil)
		doc.Text, doc.Title = p.text, p.title
	case TypePDF:
		doc.Text, err = extractPDF(content)
	case TypeDOCX:
		doc.Text, err = extractDOCX(content)
	case TypeXLSX:
		doc.Text, err = extractXLSX(content)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
	if err != nil {
		return rag.Document{}, err
	}
	if doc.Title == "" {
		doc.Title = TitleFromOrigin(origin)
	}
	return doc, nil
}

// markdownTitle returns the text of the first level-one heading, if any.
func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
