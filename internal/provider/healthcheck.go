package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HealthCheckConfig probes a generation backend without spending tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck is a HealthCheckConfig that issues one GET against a cheap
// listing endpoint of the backend.
type httpCheck struct {
	client *http.Client
	url    string
	header http.Header
}

// HealthCheck returns nil when the endpoint answers with a 2xx status.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a token-free probe for the configured backend, or
// nil when the backend has none (bedrock), in which case callers fall back
// to a generate call.
func NewHealthCheck(cfg *Config, timeout time.Duration) HealthCheckConfig {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	header := http.Header{}

	switch cfg.Backend {
	case BackendOllama:
		host := cfg.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return &httpCheck{client: client, url: strings.TrimRight(host, "/") + "/api/tags", header: header}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
		return &httpCheck{client: client, url: strings.TrimRight(base, "/") + "/models", header: header}
	case BackendAzure:
		header.Set("api-key", cfg.AzureOpenAI.APIKey)
		u := strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" +
			url.QueryEscape(cfg.AzureOpenAI.APIVersion)
		return &httpCheck{client: client, url: u, header: header}
	case BackendGemini:
		header.Set("x-goog-api-key", cfg.Gemini.APIKey)
		return &httpCheck{client: client, url: "https://generativelanguage.googleapis.com/v1beta/models", header: header}
	}
	return nil
}
