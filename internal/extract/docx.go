package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// docxBody is the main document part of a .docx package.
const docxBody = "word/document.xml"

// extractDOCX returns the paragraphs of the document body followed by those
// of its headers and footers. Runs inside a paragraph are concatenated, tabs
// and breaks are preserved, and table cells become separate paragraphs.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	parts := map[string]*zip.File{}
	var extra []string
	for _, f := range zr.File {
		parts[f.Name] = f
		if strings.HasPrefix(f.Name, "word/header") || strings.HasPrefix(f.Name, "word/footer") {
			extra = append(extra, f.Name)
		}
	}
	body, ok := parts[docxBody]
	if !ok {
		return "", fmt.Errorf("extract DOCX: %s not found", docxBody)
	}
	sort.Strings(extra)

	var out []string
	for _, f := range append([]*zip.File{body}, filesOf(parts, extra)...) {
		paras, err := docxParagraphs(f)
		if err != nil {
			return "", fmt.Errorf("extract DOCX: %s: %w", f.Name, err)
		}
		out = append(out, paras...)
	}
	return strings.Join(out, "\n"), nil
}

func filesOf(parts map[string]*zip.File, names []string) []*zip.File {
	out := make([]*zip.File, 0, len(names))
	for _, n := range names {
		out = append(out, parts[n])
	}
	return out
}

// docxParagraphs streams one WordprocessingML part and returns its
// non-empty paragraphs.
func docxParagraphs(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		paras  []string
		cur    strings.Builder
		inText bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			paras = append(paras, s)
		}
		cur.Reset()
	}

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	flush()
	return paras, nil
}
