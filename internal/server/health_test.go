package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func getReady(t *testing.T, pingers ...Pinger) (int, readyResponse) {
	t.Helper()
	s := newTestServer(t)
	s.pingers = pingers

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected ok, got %q", body["status"])
	}
	if body["version"] == "" {
		t.Error("version: expected non-empty")
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    []bool
	}{
		{"no pingers", nil, http.StatusOK, true, nil},
		{
			"all healthy",
			[]Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "qdrant"}},
			http.StatusOK, true, []bool{true, true},
		},
		{
			"one failing",
			[]Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "qdrant", err: errors.New("connection refused")}},
			http.StatusServiceUnavailable, false, []bool{true, false},
		},
		{
			"all failing",
			[]Pinger{&fakePinger{name: "ollama", err: errors.New("timeout")}, &fakePinger{name: "qdrant", err: errors.New("refused")}},
			http.StatusServiceUnavailable, false, []bool{false, false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, resp := getReady(t, tc.pingers...)
			if code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, code)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: expected %t, got %t", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d: expected %q, got %q", i, tc.pingers[i].Name(), c.Name)
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q: expected ok=%t", c.Name, tc.wantOK[i])
				}
				if c.OK != (c.Error == "") {
					t.Errorf("check %q: ok=%t but error=%q", c.Name, c.OK, c.Error)
				}
			}
		})
	}
}

func TestProbe_RunsConcurrently(t *testing.T) {
	t.Parallel()

	pingers := []Pinger{
		&fakePinger{name: "a", delay: 150 * time.Millisecond},
		&fakePinger{name: "b", delay: 150 * time.Millisecond},
		&fakePinger{name: "c", delay: 150 * time.Millisecond},
	}
	start := time.Now()
	checks := probe(context.Background(), pingers)
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("probes appear sequential: took %v", elapsed)
	}
	for _, c := range checks {
		if !c.OK || c.LatencyMS < 100 {
			t.Errorf("check %q: unexpected result %+v", c.Name, c)
		}
	}
}

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	ok := NewIndexPinger(&fakePinger{name: "x"}, "qdrant")
	if ok.Name() != "qdrant" || ok.Ping(context.Background()) != nil {
		t.Error("expected healthy qdrant pinger")
	}
	down := NewIndexPinger(&fakePinger{err: errors.New("unavailable")}, "qdrant")
	if err := down.Ping(context.Background()); err == nil {
		t.Error("expected error from unreachable index")
	}
}
