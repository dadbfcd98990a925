package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Store     StoreConfig     `koanf:"store"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Research  ResearchConfig  `koanf:"research"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// LLMConfig configures the reasoning gateway. Provider names:
// ollama, openai, mock.
type LLMConfig struct {
	Provider         string  `koanf:"provider"`
	Model            string  `koanf:"model"`
	BaseURL          string  `koanf:"base_url"`
	APIKey           string  `koanf:"api_key"`
	FallbackProvider string  `koanf:"fallback_provider"`
	FallbackModel    string  `koanf:"fallback_model"`
	FallbackBaseURL  string  `koanf:"fallback_base_url"`
	FallbackAPIKey   string  `koanf:"fallback_api_key"`
	TimeoutSeconds   int     `koanf:"timeout_seconds"`
	Temperature      float64 `koanf:"temperature"`
	// MaxAttempts retries each provider call with backoff; 1 disables retry.
	MaxAttempts int `koanf:"max_attempts"`
}

// StoreConfig selects the capability store backend.
type StoreConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, mysql
	Path   string `koanf:"path"`   // sqlite file path
	DSN    string `koanf:"dsn"`    // mysql dsn
}

type CatalogConfig struct {
	Dir string `koanf:"dir"`
}

type ResearchConfig struct {
	// SuppressionDays is how long an identical improvement description is
	// suppressed from re-proposal after it has been requested once.
	SuppressionDays int `koanf:"suppression_days"`
	// SweepIntervalHours is how often the runtime sweeps agents for due research.
	SweepIntervalHours int `koanf:"sweep_interval_hours"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.timeout_seconds", 45)
	k.Set("llm.temperature", 0.4)
	k.Set("llm.max_attempts", 1)

	k.Set("store.driver", "sqlite")
	k.Set("store.path", "melior.db")

	k.Set("catalog.dir", "catalog")

	k.Set("research.suppression_days", 14)
	k.Set("research.sweep_interval_hours", 24)

	k.Set("telemetry.exporter", "stdout")

	k.Set("server.addr", ":8080")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (MELIOR_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("MELIOR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MELIOR_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
