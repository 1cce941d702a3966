package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxPages    = 200
	defaultUserAgent   = "groundqa/1.0 (corpus ingestion)"

	// maxBodyBytes caps a single fetched page.
	maxBodyBytes = 20 << 20
)

// FetchConfig holds the configuration for URL sources.
type FetchConfig struct {
	// HTTPTimeout is the timeout for each fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// MaxDepth is how many link levels below the start URL are followed.
	// Zero fetches only the start page.
	MaxDepth int

	// MaxPages bounds the pages fetched per start URL. Defaults to 200.
	MaxPages int

	// Delay is the minimum interval between requests. Zero means no delay.
	Delay time.Duration
}

// Fetcher retrieves web pages and follows links below a start URL.
type Fetcher struct {
	// cfg holds the resolved fetch configuration.
	cfg FetchConfig

	// httpClient is the HTTP client used for fetching pages.
	httpClient *http.Client

	// limiter spaces requests by cfg.Delay.
	limiter *rate.Limiter
}

// NewFetcher constructs a Fetcher with defaults applied to cfg.
func NewFetcher(cfg *FetchConfig) *Fetcher {
	var c FetchConfig
	if cfg != nil {
		c = *cfg
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	limit := rate.Inf
	if c.Delay > 0 {
		limit = rate.Every(c.Delay)
	}
	return &Fetcher{
		cfg:        c,
		httpClient: &http.Client{Timeout: c.HTTPTimeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Crawl fetches start and, breadth first, the pages it links to that live
// under start, up to MaxDepth levels and MaxPages pages. Documents,
// per-page failures and navigation-only pages are appended to res.
func (f *Fetcher) Crawl(ctx context.Context, start string, res *Result) error {
	log := logging.FromContext(ctx)
	root, err := url.Parse(start)
	if err != nil {
		return fmt.Errorf("extract: invalid URL %q: %w", start, err)
	}
	prefix := canonicalURL(root)

	type item struct {
		url   string
		depth int
	}
	queue := []item{{url: prefix}}
	queued := map[string]bool{prefix: true}
	visited := 0

	for len(queue) > 0 && visited < f.cfg.MaxPages {
		cur := queue[0]
		queue = queue[1:]

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		visited++
		log.Debug("extract: fetching", slog.String("url", cur.url), slog.Int("depth", cur.depth))

		body, contentType, err := f.fetch(ctx, cur.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Failures = append(res.Failures, &rag.IngestionError{Origin: cur.url, Err: err})
			continue
		}

		doc, next, err := f.extractPage(cur.url, contentType, body)
		switch {
		case errors.Is(err, errLowContent):
			res.Skipped = append(res.Skipped, cur.url)
		case err != nil:
			res.Failures = append(res.Failures, &rag.IngestionError{Origin: cur.url, Err: err})
		default:
			res.Documents = append(res.Documents, doc)
		}

		if cur.depth >= f.cfg.MaxDepth {
			continue
		}
		for _, link := range next {
			if queued[link] || !shouldFollow(prefix, link) {
				continue
			}
			if visited+len(queue) >= f.cfg.MaxPages {
				break
			}
			queued[link] = true
			queue = append(queue, item{url: link, depth: cur.depth + 1})
		}
	}
	return nil
}

// extractPage converts one fetched body into a document and returns the
// links it contains.
func (f *Fetcher) extractPage(pageURL, contentType string, body []byte) (rag.Document, []string, error) {
	switch contentType {
	case TypeHTML, "application/xhtml+xml", "":
	default:
		doc, err := extractAs(pageURL, contentType, body)
		return doc, nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return rag.Document{}, nil, err
	}
	p, err := parseHTML(body, base)
	if err != nil {
		return rag.Document{}, nil, err
	}
	if !substantive(p.text) {
		return rag.Document{}, p.links, errLowContent
	}
	title := p.title
	if title == "" {
		title = TitleFromOrigin(pageURL)
	}
	return rag.Document{
		Origin:      pageURL,
		Title:       title,
		Text:        p.text,
		ContentType: TypeHTML,
		IngestedAt:  time.Now().UTC(),
	}, p.links, nil
}

// fetch retrieves the raw content of a URL and its media type.
func (f *Fetcher) fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, text/plain, application/pdf")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct, ok := ContentTypeFor(req.URL.Path); ok && (mediaType == "" || mediaType == "application/octet-stream") {
		mediaType = ct
	}
	if strings.HasPrefix(mediaType, "text/") && mediaType != TypeHTML && mediaType != TypeMarkdown {
		mediaType = TypePlain
	}
	return body, mediaType, nil
}
