package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// okHandler is the downstream handler for middleware tests.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func askFrom(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 3, discardLog)
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 3 {
		if w := askFrom(h, "10.0.0.1:1000"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: expected 200, got %d", i, w.Code)
		}
	}

	w := askFrom(h, "10.0.0.1:1001")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Errorf("Retry-After: expected positive seconds, got %q", w.Header().Get("Retry-After"))
	}
}

func TestRateLimit_RejectionDoesNotConsumeTokens(t *testing.T) {
	t.Parallel()

	// 20 tokens/s refills one token every 50ms.
	rl, stop := newRateLimiter(20, 1, discardLog)
	defer stop()
	h := rl.middleware(okHandler)

	askFrom(h, "10.0.0.2:1")
	for range 5 {
		askFrom(h, "10.0.0.2:1")
	}
	time.Sleep(120 * time.Millisecond)
	if w := askFrom(h, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Errorf("expected the bucket to refill after rejected requests, got %d", w.Code)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, discardLog)
	defer stop()
	h := rl.middleware(okHandler)

	for range 3 {
		askFrom(h, "192.168.1.1:1111")
	}
	if w := askFrom(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_SweepDropsIdleClients(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, discardLog)
	defer stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.bucket("a")
	rl.bucket("b")

	now = now.Add(limiterIdleTTL - time.Second)
	rl.bucket("b")
	now = now.Add(2 * time.Second)
	rl.sweep()

	if rl.size() != 1 {
		t.Fatalf("expected only the recently seen client to remain, got %d", rl.size())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()
	cases := map[time.Duration]int{
		0:                       1,
		200 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", d, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"127.0.0.1:54321": "127.0.0.1",
		"[::1]:8080":      "::1",
		"noport":          "noport",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", remote, got, want)
		}
	}
}
