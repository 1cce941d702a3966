package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/provider"
	"github.com/54b3r/groundqa-go/internal/rag"
	"github.com/54b3r/groundqa-go/internal/server"
	"github.com/54b3r/groundqa-go/internal/tracing"
)

// healthCheckTimeout bounds the zero-cost provider probe used by /api/ready.
const healthCheckTimeout = 5 * time.Second

// NewServeCmd constructs the `groundqa serve` command, which starts the HTTP
// API for question answering.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the groundqa HTTP API",
		Long: `Start the groundqa HTTP server.

Endpoints:
  POST /api/ask       {"query": "..."} -> {"answer", "citations", "grounded"}
  GET  /api/sources   indexed documents
  GET  /api/index     vector index status
  GET  /api/history   recent questions (?limit=N)
  GET  /api/health    liveness
  GET  /api/ready     readiness (generation backend, Qdrant)
  GET  /metrics       Prometheus metrics

Set GROUNDQA_API_KEY to require "Authorization: Bearer <key>" on /api/*
routes other than health and ready.

Examples:
  groundqa serve
  groundqa serve --port 9090
  MODEL_PROVIDER=azure groundqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush, ok := tracing.Enable()
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			a, cleanup, err := buildApp(ctx, buildOptions{generation: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			pingers := []server.Pinger{
				server.NewLLMPinger(a.chatModel, provider.NewHealthCheck(a.providerCfg, healthCheckTimeout), string(a.providerCfg.Backend)),
			}
			if p, ok := a.index.(rag.Pinger); ok {
				pingers = append(pingers, server.NewIndexPinger(p, a.settings.Index.Backend))
			}

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("GROUNDQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("GROUNDQA_PORT", port)
			}

			srv, err := server.New(a.svc, &server.Config{
				Host:       host,
				Port:       port,
				AskTimeout: askTimeout(a),
				Logger:     log,
				Pingers:    pingers,
				RateLimit:  getEnvFloat("GROUNDQA_RATE_LIMIT", 0),
				RateBurst:  getEnvInt("GROUNDQA_RATE_BURST", 0),
				APIKey:     os.Getenv("GROUNDQA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // CLI entry point
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides GROUNDQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides GROUNDQA_PORT)")

	return cmd
}

// askTimeout leaves room for every generation attempt plus retrieval.
func askTimeout(a *app) time.Duration {
	p := a.settings.GenerationRetry
	if p.CallTimeout <= 0 || p.Attempts <= 0 {
		return 0
	}
	return time.Duration(p.Attempts)*(p.CallTimeout+p.Max) + 30*time.Second
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
