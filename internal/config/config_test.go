package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EREVNA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Pipeline.MaxConcurrentTasks != 3 {
		t.Errorf("max concurrent = %d", cfg.Pipeline.MaxConcurrentTasks)
	}
	if cfg.Pipeline.RetryAttempts != 2 {
		t.Errorf("retry attempts = %d", cfg.Pipeline.RetryAttempts)
	}
	if got := cfg.Pipeline.StageTimeoutFor("verification"); got != 180*time.Second {
		t.Errorf("verification timeout = %s", got)
	}
	if got := cfg.Pipeline.StageTimeoutFor("unknown"); got != 300*time.Second {
		t.Errorf("fallback timeout = %s", got)
	}
	if cfg.Store.DuplicateThreshold != 0.8 || cfg.Store.CacheSizeLimit != 1000 {
		t.Errorf("store config = %+v", cfg.Store)
	}
	if cfg.Reports.DefaultFormat != "html" {
		t.Errorf("default format = %q", cfg.Reports.DefaultFormat)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erevna.yaml")
	content := `
pipeline:
  retry_attempts: 5
store:
  path: /tmp/custom.db
research:
  provider: http
  domains:
    - https://example.org/a
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EREVNA_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.RetryAttempts != 5 {
		t.Errorf("retry attempts = %d", cfg.Pipeline.RetryAttempts)
	}
	if got := cfg.Pipeline.StageTimeoutFor("research"); got != 300*time.Second {
		t.Errorf("research timeout = %s", got)
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Research.Provider != "http" || len(cfg.Research.Domains) != 1 {
		t.Errorf("research config = %+v", cfg.Research)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erevna.yaml")
	if err := os.WriteFile(path, []byte("research:\n  api_key: ${TEST_API_KEY}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EREVNA_CONFIG", path)
	t.Setenv("TEST_API_KEY", "sk-123")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Research.APIKey != "sk-123" {
		t.Errorf("api key = %q", cfg.Research.APIKey)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EREVNA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("EREVNA_STORE_PATH", "/tmp/env.db")
	t.Setenv("EREVNA_WEB_PORT", "9999")
	t.Setenv("EREVNA_TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Web.Port != 9999 {
		t.Errorf("web port = %d", cfg.Web.Port)
	}
	if cfg.Telegram.ChatID != 12345 {
		t.Errorf("chat id = %d", cfg.Telegram.ChatID)
	}
}
