package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/groundqa-go/internal/qa"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single /api/ask request including retrieval and
	// generation retries. Defaults to 2 minutes if zero.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained /api/ask rate allowed per IP
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the application surface the handlers call.
// *qa.Service satisfies it; tests inject a fake.
type answerer interface {
	// Ask answers a question or returns the refusal.
	Ask(ctx context.Context, query string) qa.Response
	// CheckQuestion rejects questions Ask would refuse for their length.
	CheckQuestion(query string) error
	// Sources lists the indexed documents.
	Sources(ctx context.Context) ([]qa.Source, error)
	// Status describes the vector index.
	Status(ctx context.Context) (qa.IndexStatus, error)
	// History returns the most recent questions.
	History(ctx context.Context, n int) ([]qa.HistoryEntry, error)
}

// Server is the HTTP server that exposes the question answering service.
type Server struct {
	// svc answers questions and reports on the corpus.
	svc answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
}

// sourcesResponse is the JSON response for GET /api/sources.
type sourcesResponse struct {
	Sources []qa.Source `json:"sources"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	Queries []qa.HistoryEntry `json:"queries"`
}

// errorResponse is the JSON body of every 4xx/5xx response from /api/*.
type errorResponse struct {
	Error string `json:"error"`
}
