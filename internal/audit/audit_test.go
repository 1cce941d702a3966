package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "azure"); got != "azure" {
		t.Errorf("expected 'azure', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.groundqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.groundqa/config.yaml" {
			t.Errorf("expected '~/.groundqa/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GROUNDQA_API_KEY", "super-secret")
	t.Setenv("INDEX_BACKEND", "qdrant")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewJSONHandler(&buf, nil)), "serve", "")

	out := buf.String()
	if strings.Contains(out, "super-secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("audit log is not JSON: %v", err)
	}
	if entry["GROUNDQA_API_KEY"] != "set" {
		t.Errorf("GROUNDQA_API_KEY = %v, want set", entry["GROUNDQA_API_KEY"])
	}
	if entry["INDEX_BACKEND"] != "qdrant" {
		t.Errorf("INDEX_BACKEND = %v, want qdrant", entry["INDEX_BACKEND"])
	}
	if entry["config_file"] != "none" {
		t.Errorf("config_file = %v, want none", entry["config_file"])
	}
}

func TestLogIngest(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	LogIngest(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)), IngestRecord{
		Sources:          []string{"/srv/docs"},
		Model:            "hash/hash-v1@1024",
		DocumentsIndexed: 3,
		Failures:         1,
		Err:              errors.New("index unavailable"),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("audit log is not JSON: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
	if entry["documents_indexed"] != float64(3) {
		t.Errorf("documents_indexed = %v, want 3", entry["documents_indexed"])
	}
	if entry["error"] != "index unavailable" {
		t.Errorf("error = %v", entry["error"])
	}
}
