// Package tracing wires optional Langfuse tracing into every generation call.
package tracing

import (
	"os"
	"strconv"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/groundqa-go/internal/version"
)

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, both return values are nil and tracing is silently disabled.
//
// LANGFUSE_SAMPLE_RATE (0.0-1.0) thins out traces on busy servers.
func Setup() (callbacks.Handler, func(), bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "http://localhost:3000"
	}
	sampleRate := 1.0
	if v, err := strconv.ParseFloat(os.Getenv("LANGFUSE_SAMPLE_RATE"), 64); err == nil && v > 0 && v <= 1 {
		sampleRate = v
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:       host,
		PublicKey:  publicKey,
		SecretKey:  secretKey,
		Name:       "groundqa",
		Release:    version.Version,
		SampleRate: sampleRate,
	})

	return handler, flusher, true
}

// Enable registers the Langfuse handler globally when configured and returns
// the flush function, or a no-op when tracing is disabled.
func Enable() (flush func(), enabled bool) {
	handler, flusher, ok := Setup()
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flusher, true
}
