// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, validation, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./console.db"

auth:
  enabled: true
  jwt_secret: "test-secret"
  token_ttl: "12h"

upstream:
  request_timeout: "45s"

dedupe:
  ttl: "10m"
  max_entries: 500

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./console.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if cfg.Upstream.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.Upstream.RequestTimeout)
	}
	if cfg.Dedupe.TTL != 10*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want 10m", cfg.Dedupe.TTL)
	}
	if cfg.Dedupe.MaxEntries != 500 {
		t.Errorf("Dedupe.MaxEntries = %d, want 500", cfg.Dedupe.MaxEntries)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./console.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.TokenTTL != defaultTokenTTL {
		t.Errorf("TokenTTL = %v, want default %v", cfg.Auth.TokenTTL, defaultTokenTTL)
	}
	if cfg.Upstream.RequestTimeout != defaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want default %v", cfg.Upstream.RequestTimeout, defaultRequestTimeout)
	}
	if cfg.Dedupe.TTL != defaultDedupeTTL {
		t.Errorf("Dedupe.TTL = %v, want default %v", cfg.Dedupe.TTL, defaultDedupeTTL)
	}
	if cfg.Dedupe.MaxEntries != defaultDedupeEntries {
		t.Errorf("Dedupe.MaxEntries = %d, want default %d", cfg.Dedupe.MaxEntries, defaultDedupeEntries)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging defaults = %q/%q, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MCPCONNECT_TEST_SECRET", "expanded-secret")

	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./console.db"
auth:
  enabled: true
  jwt_secret: "${MCPCONNECT_TEST_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
}

func TestLoad_MissingHTTPAddr(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "./console.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for missing http_addr")
	}
	if !strings.Contains(err.Error(), "HTTPAddr") {
		t.Errorf("error = %v, want mention of HTTPAddr", err)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for missing database path")
	}
}

func TestLoad_AuthEnabledRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./console.db"
auth:
  enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error when auth enabled without jwt_secret")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./console.db"
upstream:
  request_timeout: "not-a-duration"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for bad duration")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error = %v, want mention of request_timeout", err)
	}
}

func TestLoad_BadLoggingLevel(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./console.db"
logging:
  level: "verbose"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for unknown logging level")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
