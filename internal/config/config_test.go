package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Ledger.CacheTTL != 24*time.Hour {
		t.Errorf("expected 24h cache ttl, got %s", cfg.Ledger.CacheTTL)
	}
	if cfg.Platforms.X.MaxChars != 280 {
		t.Errorf("expected x max_chars 280, got %d", cfg.Platforms.X.MaxChars)
	}
	if cfg.Retention.Min != 0.95 || cfg.Retention.Max != 1.05 {
		t.Errorf("unexpected retention bounds %v-%v", cfg.Retention.Min, cfg.Retention.Max)
	}
	if len(cfg.Lexicon.AllowedEmoji) != 4 {
		t.Errorf("expected 4 allowed emoji, got %d", len(cfg.Lexicon.AllowedEmoji))
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: ollama
  model: qwen2.5:14b
revision:
  threshold: 75
ledger:
  cache_ttl: 30m
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Revision.Threshold != 75 {
		t.Errorf("expected threshold 75, got %d", cfg.Revision.Threshold)
	}
	if cfg.Ledger.CacheTTL != 30*time.Minute {
		t.Errorf("expected 30m ttl, got %s", cfg.Ledger.CacheTTL)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Revision.MaxRevisions != 1 {
		t.Errorf("expected default max_revisions 1, got %d", cfg.Revision.MaxRevisions)
	}
	if cfg.Retry.SchemaRetries != 2 {
		t.Errorf("expected default schema_retries 2, got %d", cfg.Retry.SchemaRetries)
	}
}

func TestParseInvalidDuration(t *testing.T) {
	_, err := parse([]byte("ledger:\n  cache_ttl: tomorrow\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Resources.ExcludedHosts) == 0 {
		t.Error("expected excluded hosts to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected /custom/path, got %q", cfg.GetDataDir())
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "talkcomms.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o644)

	got, err := ResolveConfigPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}

	if _, err := ResolveConfigPath(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}
