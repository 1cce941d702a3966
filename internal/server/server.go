// Package server implements the HTTP API that exposes closed-corpus question
// answering. It is started by the `groundqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/qa"
	"github.com/54b3r/groundqa-go/internal/version"
)

const (
	// maxAskBodyBytes caps the POST /api/ask request body.
	maxAskBodyBytes = 64 << 10

	// defaultHistoryLimit and maxHistoryLimit bound GET /api/history.
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// New constructs a Server from the provided service and config.
func New(svc *qa.Service, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: service must not be nil")
	}
	return newServer(svc, cfg), nil
}

func newServer(svc answerer, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast a full ask including generation retries.
		cfg.WriteTimeout = cfg.AskTimeout + 10*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	protect := func(h http.Handler) http.Handler { return authMiddleware(cfg.APIKey, h) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.instrument("ask", protect(rl.middleware(http.HandlerFunc(s.handleAsk)))))
	mux.Handle("GET /api/sources", s.instrument("sources", protect(http.HandlerFunc(s.handleSources))))
	mux.Handle("GET /api/index", s.instrument("index", protect(http.HandlerFunc(s.handleIndex))))
	mux.Handle("GET /api/history", s.instrument("history", protect(http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	if cfg.APIKey == "" {
		log.Warn("server: GROUNDQA_API_KEY is not set, API authentication is disabled")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler including all middleware.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. The response is always 200 with either a
// grounded answer or the refusal once the request body is valid and the
// question is within the length limit.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.CheckQuestion(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.askActive.Inc()
	defer s.metrics.askActive.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	start := time.Now()
	resp := s.svc.Ask(ctx, req.Query)
	elapsed := time.Since(start)

	outcome := string(resp.Reason)
	if outcome == "" {
		outcome = "unknown"
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	writeJSON(w, log, http.StatusOK, resp)
}

// handleSources handles GET /api/sources.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	sources, err := s.svc.Sources(r.Context())
	if err != nil {
		log.Error("sources: listing failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not list sources")
		return
	}
	writeJSON(w, log, http.StatusOK, sourcesResponse{Sources: sources})
}

// handleIndex handles GET /api/index.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	st, err := s.svc.Status(r.Context())
	if err != nil {
		log.Error("index: status failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not read index status")
		return
	}
	writeJSON(w, log, http.StatusOK, st)
}

// handleHistory handles GET /api/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.svc.History(r.Context(), limit)
	if err != nil {
		log.Error("history: query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	writeJSON(w, log, http.StatusOK, historyResponse{Queries: entries})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
