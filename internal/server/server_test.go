package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/groundqa-go/internal/qa"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// fakeAnswerer is a test double for the answerer interface. Questions that
// contain "pin" get a grounded answer; everything else is refused.
type fakeAnswerer struct {
	mu       sync.Mutex
	asked    []string
	historyN int

	sourcesErr error
}

func (f *fakeAnswerer) Ask(_ context.Context, query string) qa.Response {
	f.mu.Lock()
	f.asked = append(f.asked, query)
	f.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		return qa.Response{Answer: "I don't know.", Citations: []rag.Citation{}, Reason: rag.ReasonEmptyQuery}
	}
	if !strings.Contains(strings.ToLower(query), "pin") {
		return qa.Response{Answer: "I don't know.", Citations: []rag.Citation{}, Reason: rag.ReasonNoContext}
	}
	return qa.Response{
		Answer:    "Open Settings and choose Reset PIN [1].",
		Citations: []rag.Citation{{Marker: "[1]", DocumentID: "faq/pin.md", Title: "Reset your trading PIN", ChunkIDs: []string{"c1"}}},
		Grounded:  true,
		Reason:    rag.ReasonGrounded,

		SimilarQuestions: []string{"Can I change my PIN from the web?"},
	}
}

func (f *fakeAnswerer) CheckQuestion(query string) error {
	if len(query) > 40 {
		return fmt.Errorf("%w: %d characters, max 40", qa.ErrQuestionTooLong, len(query))
	}
	return nil
}

func (f *fakeAnswerer) Sources(_ context.Context) ([]qa.Source, error) {
	if f.sourcesErr != nil {
		return nil, f.sourcesErr
	}
	return []qa.Source{{ID: "faq/pin.md", Title: "Reset your trading PIN", Chunks: 2}}, nil
}

func (f *fakeAnswerer) Status(_ context.Context) (qa.IndexStatus, error) {
	return qa.IndexStatus{Backend: "memory", Model: "hash/hash-v1@256", Dimensions: 256, Entries: 2, Documents: 1}, nil
}

func (f *fakeAnswerer) History(_ context.Context, n int) ([]qa.HistoryEntry, error) {
	f.mu.Lock()
	f.historyN = n
	f.mu.Unlock()
	return []qa.HistoryEntry{{Question: "how do I reset my pin?", Grounded: true, Reason: "grounded"}}, nil
}

// newTestServer builds a Server around a fakeAnswerer with an isolated
// metrics registry and a discarded log.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, _ := newTestServerWith(t, &fakeAnswerer{}, &Config{})
	return s
}

func newTestServerWith(t *testing.T, svc answerer, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newServer(svc, cfg)
	t.Cleanup(s.stopRL)
	return s, reg
}

func doRequest(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "127.0.0.1:40000"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_RequiresService(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, &Config{}); err == nil {
		t.Fatal("expected error for nil service")
	}
}

func TestNewServer_Defaults(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	if s.httpServer.Addr != "127.0.0.1:8080" {
		t.Errorf("addr: got %q", s.httpServer.Addr)
	}
	if s.cfg.AskTimeout != 2*time.Minute {
		t.Errorf("ask timeout: got %v", s.cfg.AskTimeout)
	}
	if s.httpServer.WriteTimeout <= s.cfg.AskTimeout {
		t.Errorf("write timeout %v must exceed ask timeout %v", s.httpServer.WriteTimeout, s.cfg.AskTimeout)
	}
}

func TestHandleAsk_Grounded(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"How do I reset my PIN?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["grounded"] != true {
		t.Errorf("expected grounded=true, got %v", resp["grounded"])
	}
	if _, ok := resp["reason"]; ok {
		t.Error("reason must not be exposed in the response")
	}
	cites, ok := resp["citations"].([]any)
	if !ok || len(cites) != 1 {
		t.Fatalf("expected one citation, got %v", resp["citations"])
	}
	similar, ok := resp["similar_questions"].([]any)
	if !ok || len(similar) != 1 || similar[0] != "Can I change my PIN from the web?" {
		t.Errorf("expected one similar question, got %v", resp["similar_questions"])
	}
}

func TestHandleAsk_Refusal(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"what is the capital of France?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"answer":"I don't know."`) {
		t.Errorf("expected refusal text, got %s", body)
	}
	if !strings.Contains(body, `"citations":[]`) {
		t.Errorf("expected empty citations array, got %s", body)
	}
}

func TestHandleAsk_EmptyQueryIsRefusedNotRejected(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"   "}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "I don't know.") {
		t.Errorf("expected refusal, got %s", w.Body.String())
	}
}

func TestHandleAsk_InvalidBody(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/ask", `{not json`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestHandleAsk_QuestionTooLong(t *testing.T) {
	t.Parallel()
	svc := &fakeAnswerer{}
	s, _ := newTestServerWith(t, svc, &Config{})

	body := `{"query":"` + strings.Repeat("pin ", 20) + `"}`
	w := doRequest(t, s, http.MethodPost, "/api/ask", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "question too long") {
		t.Errorf("error = %q, want the length limit", resp.Error)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.asked) != 0 {
		t.Errorf("over-long question reached the service: %v", svc.asked)
	}
}

func TestHandleAsk_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/ask", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleAsk_RecordsOutcomeMetric(t *testing.T) {
	t.Parallel()
	s, reg := newTestServerWith(t, &fakeAnswerer{}, &Config{})

	doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"reset pin"}`, nil)
	doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"weather"}`, nil)

	got := counterValues(t, reg, "groundqa_ask_requests_total", "outcome")
	if got["grounded"] != 1 || got["no_context"] != 1 {
		t.Errorf("unexpected outcome counts: %v", got)
	}
}

func TestProtectedRoutes_RequireAPIKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestServerWith(t, &fakeAnswerer{}, &Config{APIKey: "secret"})

	for _, path := range []string{"/api/sources", "/api/index", "/api/history"} {
		if w := doRequest(t, s, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, w.Code)
		}
		w := doRequest(t, s, http.MethodGet, path, "", map[string]string{"Authorization": "Bearer secret"})
		if w.Code != http.StatusOK {
			t.Errorf("%s with token: expected 200, got %d", path, w.Code)
		}
	}
	if w := doRequest(t, s, http.MethodPost, "/api/ask", `{"query":"pin"}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("/api/ask without token: expected 401, got %d", w.Code)
	}

	// Probes stay open for orchestrators.
	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		if w := doRequest(t, s, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without token, got %d", path, w.Code)
		}
	}
}

func TestHandleSources(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/sources", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp sourcesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "faq/pin.md" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestHandleSources_Error(t *testing.T) {
	t.Parallel()
	s, _ := newTestServerWith(t, &fakeAnswerer{sourcesErr: errors.New("db locked")}, &Config{})

	w := doRequest(t, s, http.MethodGet, "/api/sources", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "db locked") {
		t.Error("internal error detail leaked to client")
	}
}

func TestHandleIndex(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/index", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st qa.IndexStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Entries != 2 || st.Model != "hash/hash-v1@256" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestHandleHistory_Limit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query    string
		wantCode int
		wantN    int
	}{
		{"", http.StatusOK, defaultHistoryLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=100000", http.StatusOK, maxHistoryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		fake := &fakeAnswerer{}
		s, _ := newTestServerWith(t, fake, &Config{})
		w := doRequest(t, s, http.MethodGet, "/api/history"+tc.query, "", nil)
		if w.Code != tc.wantCode {
			t.Errorf("%q: expected %d, got %d", tc.query, tc.wantCode, w.Code)
			continue
		}
		if fake.historyN != tc.wantN {
			t.Errorf("%q: expected limit %d, got %d", tc.query, tc.wantN, fake.historyN)
		}
	}
}

// counterValues returns the values of a counter vector keyed by one label.
func counterValues(t *testing.T, reg *prometheus.Registry, name, label string) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label {
					out[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}
