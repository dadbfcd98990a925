package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.TimeoutSeconds != 45 {
		t.Errorf("expected default timeout 45, got %d", cfg.LLM.TimeoutSeconds)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default store driver 'sqlite', got %q", cfg.Store.Driver)
	}
	if cfg.Research.SuppressionDays != 14 {
		t.Errorf("expected default suppression window 14 days, got %d", cfg.Research.SuppressionDays)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "melior.yaml")
	content := []byte(`
log:
  level: debug
  format: json
llm:
  provider: openai
  fallback_provider: ollama
store:
  driver: memory
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("file values not applied: %+v", cfg.Log)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.FallbackProvider != "ollama" {
		t.Errorf("expected fallback provider 'ollama', got %q", cfg.LLM.FallbackProvider)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected store driver 'memory', got %q", cfg.Store.Driver)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MELIOR_LLM_PROVIDER", "mock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("expected env override 'mock', got %q", cfg.LLM.Provider)
	}
}

func TestReloadableConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rc := NewReloadableConfig(cfg)
	if rc.LLM().Provider != cfg.LLM.Provider {
		t.Errorf("accessor mismatch")
	}

	next := *cfg
	next.LLM.Provider = "openai"
	rc.Update(&next)
	if rc.LLM().Provider != "openai" {
		t.Errorf("expected updated provider, got %q", rc.LLM().Provider)
	}
}
