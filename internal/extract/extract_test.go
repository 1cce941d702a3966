package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/54b3r/groundqa-go/internal/rag"
)

const supportPage = `<!doctype html>
<html><head><title>Reset your trading PIN</title><style>body{}</style></head>
<body>
<nav><a href="/support">Menu</a> <a href="/login">Login</a></nav>
<header>Example Brokerage header</header>
<main>
  <h1>Reset your trading PIN</h1>
  <p>Open the app, go to Settings and choose <b>Security</b>.</p>
  <p>Tap Reset PIN and confirm with the one-time password sent to your phone.</p>
  <script>track()</script>
</main>
<footer>© 2024 Example Brokerage</footer>
</body></html>`

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_HTML(t *testing.T) {
	t.Parallel()
	doc, err := Extract("pin.html", []byte(supportPage))
	require.NoError(t, err)

	assert.Equal(t, "Reset your trading PIN", doc.Title)
	assert.Equal(t, TypeHTML, doc.ContentType)
	assert.Contains(t, doc.Text, "choose Security.")
	assert.Contains(t, doc.Text, "one-time password")
	assert.NotContains(t, doc.Text, "Login")
	assert.NotContains(t, doc.Text, "track()")
	assert.NotContains(t, doc.Text, "header")
	assert.NotContains(t, doc.Text, "2024")
}

func TestExtract_MarkdownAndPlain(t *testing.T) {
	t.Parallel()
	md, err := Extract("docs/fees.md", []byte("intro\n# Brokerage fees\n\nDelivery trades are free."))
	require.NoError(t, err)
	assert.Equal(t, "Brokerage fees", md.Title)
	assert.Equal(t, TypeMarkdown, md.ContentType)

	txt, err := Extract("docs/margin_rules.txt", []byte("Margin is blocked upfront."))
	require.NoError(t, err)
	assert.Equal(t, "Margin Rules", txt.Title)
	assert.Equal(t, "Margin is blocked upfront.", txt.Text)
	assert.Empty(t, txt.ID)
}

func TestExtract_DOCX(t *testing.T) {
	t.Parallel()
	content := buildDOCX(t, `<w:p w:rsidR="00A1"><w:r><w:t>Account </w:t></w:r><w:r><w:t xml:space="preserve">closure</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>Submit the form</w:t><w:tab/><w:t>online.</w:t></w:r></w:p>`+
		`<w:p></w:p>`)

	doc, err := Extract("closure.docx", content)
	require.NoError(t, err)
	assert.Equal(t, "Account closure\nSubmit the form\tonline.", doc.Text)
	assert.Equal(t, TypeDOCX, doc.ContentType)
}

func TestExtract_XLSX(t *testing.T) {
	t.Parallel()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Segment"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Brokerage"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Equity delivery"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Zero"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	doc, err := Extract("charges.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Sheet1\nSegment\tBrokerage\nEquity delivery\tZero", doc.Text)
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()
	_, err := Extract("image.png", []byte{0x89, 'P', 'N', 'G'})
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Extract("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)

	_, err = Extract("broken.docx", []byte("not a zip"))
	assert.Error(t, err)
}

func TestLoader_WalksDirectoryInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "b.md", []byte("# B\nsecond"))
	writeFile(t, dir, "a.txt", []byte("first"))
	writeFile(t, dir, "nested/c.html", []byte(supportPage))
	writeFile(t, dir, "logo.png", []byte{1, 2, 3})
	writeFile(t, dir, ".hidden/secret.txt", []byte("skip me"))
	writeFile(t, dir, "bad.docx", []byte("corrupt"))

	res, err := NewLoader(nil).Load(context.Background(), dir)
	require.NoError(t, err)

	origins := make([]string, 0, len(res.Documents))
	for _, d := range res.Documents {
		origins = append(origins, filepath.Base(d.Origin))
		assert.False(t, d.IngestedAt.IsZero())
	}
	assert.Equal(t, []string{"a.txt", "b.md", "c.html"}, origins)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad.docx", filepath.Base(res.Failures[0].Origin))
	var ingErr *rag.IngestionError
	assert.True(t, errors.As(res.Failures[0], &ingErr))
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()
	l := NewLoader(nil)

	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = l.Load(context.Background(), "https://example.com/support")
	assert.Error(t, err)

	res, err := l.Load(context.Background(), writeFile(t, t.TempDir(), "notes.odt", []byte("x")))
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.True(t, errors.Is(res.Failures[0], ErrUnsupported))
}

func TestFetcher_CrawlsBelowStartURL(t *testing.T) {
	t.Parallel()
	body := func(title, text string, links ...string) string {
		var a strings.Builder
		for _, l := range links {
			fmt.Fprintf(&a, `<a href="%s">link</a> `, l)
		}
		return fmt.Sprintf(`<html><head><title>%s</title></head><body><main><p>%s</p>%s</main></body></html>`, title, text, a.String())
	}
	long := "This support article explains in plain words how the feature works for every customer."

	mux := http.NewServeMux()
	mux.HandleFunc("/support", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body("Support", long, "/support/pin#top", "/support/fees?ref=1", "/blog/news", "/support/login", "/support/nav"))
	})
	mux.HandleFunc("/support/pin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body("PIN", long, "/support/pin/deep"))
	})
	mux.HandleFunc("/support/fees", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/support/nav", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body("Nav", "menu"))
	})
	mux.HandleFunc("/support/pin/deep", func(w http.ResponseWriter, r *http.Request) {
		t.Error("depth limit exceeded")
	})
	mux.HandleFunc("/blog/news", func(w http.ResponseWriter, r *http.Request) {
		t.Error("crawled outside the start URL")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	loader := NewLoader(NewFetcher(&FetchConfig{MaxDepth: 1}))
	res, err := loader.Load(context.Background(), srv.URL+"/support")
	require.NoError(t, err)

	var titles []string
	for _, d := range res.Documents {
		titles = append(titles, d.Title)
		assert.Equal(t, TypeHTML, d.ContentType)
	}
	assert.Equal(t, []string{"Support", "PIN"}, titles)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, srv.URL+"/support/fees", res.Failures[0].Origin)
	assert.Equal(t, []string{srv.URL + "/support/nav"}, res.Skipped)
}

func TestTitleFromOrigin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		origin string
		want   string
	}{
		{"docs/reset-trading-pin.md", "Reset Trading Pin"},
		{"/tmp/FAQ_general.txt", "Faq General"},
		{"https://example.com/support/fund_withdrawal", "Fund Withdrawal"},
		{"https://example.com/support/guide.pdf", "Guide"},
		{"https://example.com/", "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TitleFromOrigin(tt.origin))
		})
	}
}

func TestSubstantive(t *testing.T) {
	t.Parallel()
	assert.False(t, substantive("too short"))
	assert.False(t, substantive(strings.Repeat("menu login register home ", 10)))
	assert.True(t, substantive("To withdraw funds, open the Funds tab and enter the amount you want to move to your bank."))
}
