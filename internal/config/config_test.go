// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers YAML loading, env var expansion, durations, defaults, validation.

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
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: "https://api.oakmart.test"
  socket_url: "wss://api.oakmart.test/rt"

auth:
  token_file: "/tmp/token"

reconnect:
  max_attempts: 5
  base_delay: "250ms"
  max_delay: "10s"

chat:
  send_timeout: "8s"
  anti_flood_window: "2s"
  typing_expiry: "6s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIBase != "https://api.oakmart.test" {
		t.Errorf("Server.APIBase = %q", cfg.Server.APIBase)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelay != 250*time.Millisecond {
		t.Errorf("Reconnect.BaseDelay = %v, want 250ms", cfg.Reconnect.BaseDelay)
	}
	if cfg.Chat.SendTimeout != 8*time.Second {
		t.Errorf("Chat.SendTimeout = %v, want 8s", cfg.Chat.SendTimeout)
	}
	if cfg.Chat.TypingExpiry != 6*time.Second {
		t.Errorf("Chat.TypingExpiry = %v, want 6s", cfg.Chat.TypingExpiry)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsSurviveOmission(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: "https://api.oakmart.test"
  socket_url: "wss://api.oakmart.test/rt"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := Default()
	if cfg.Chat.DedupWindow != def.Chat.DedupWindow {
		t.Errorf("Chat.DedupWindow = %v, want default %v", cfg.Chat.DedupWindow, def.Chat.DedupWindow)
	}
	if cfg.Chat.TypingIdle != def.Chat.TypingIdle {
		t.Errorf("Chat.TypingIdle = %v, want default %v", cfg.Chat.TypingIdle, def.Chat.TypingIdle)
	}
	if cfg.Reconnect.MaxAttempts != def.Reconnect.MaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, def.Reconnect.MaxAttempts)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_OAKMART_TOKEN", "tok-123")

	path := writeConfig(t, `
server:
  api_base: "https://api.oakmart.test"
  socket_url: "wss://api.oakmart.test/rt"
auth:
  token: "${TEST_OAKMART_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Token != "tok-123" {
		t.Errorf("Auth.Token = %q, want tok-123", cfg.Auth.Token)
	}
}

func TestLoad_MissingEndpoints(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "api_base") {
		t.Errorf("error = %v, want mention of api_base", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: "https://api.oakmart.test"
  socket_url: "wss://api.oakmart.test/rt"
chat:
  send_timeout: "not-a-duration"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected duration error, got nil")
	}
}
