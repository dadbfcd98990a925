package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/meliorworks/melior/pkg/catalog"
	"github.com/meliorworks/melior/pkg/config"
	"github.com/meliorworks/melior/pkg/engine"
	"github.com/meliorworks/melior/pkg/governance"
	"github.com/meliorworks/melior/pkg/llm"
	"github.com/meliorworks/melior/pkg/report"
	"github.com/meliorworks/melior/pkg/research"
	"github.com/meliorworks/melior/pkg/resilience"
	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/telemetry"
	"github.com/meliorworks/melior/pkg/triage"
)

// app holds the constructed components. Everything is built once at process
// start and passed by reference; there are no package-level singletons.
// live carries the current configuration across reloads.
type app struct {
	live     *config.ReloadableConfig
	logger   *slog.Logger
	store    store.Store
	registry *catalog.Registry
	gateway  *llm.Gateway
	engine   *engine.Engine
	research *research.Cycle
	triage   *triage.Triage
	reporter *report.Reporter
	reviewer *governance.Reviewer

	closers []func() error
}

func buildApp(cfg *config.Config) (*app, error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a := &app{live: config.NewReloadableConfig(cfg), logger: logger}

	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st
	if closer, ok := st.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	registry, err := buildRegistry(cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	a.gateway = buildGateway(cfg.LLM, logger)
	a.engine = engine.New(a.store, a.registry, a.gateway, logger)
	a.triage = triage.New(a.store, time.Duration(cfg.Research.SuppressionDays)*24*time.Hour, logger)
	a.research = research.New(a.store, a.registry, a.gateway, a.triage, logger)
	a.reporter = report.New(a.store, logger)
	a.reviewer = governance.NewReviewer(a.store, logger)
	return a, nil
}

// reload applies a changed configuration to the running components: the
// live snapshot is swapped, the default logger re-leveled and the gateway's
// model/temperature defaults replaced. Store and server settings need a
// restart.
func (a *app) reload(next *config.Config) {
	a.live.Update(next)
	slog.SetDefault(telemetry.ConfigureSlog(os.Stderr, next.Log.Level, next.Log.Format))
	a.gateway.SetOptions(next.LLM.Model, next.LLM.FallbackModel, next.LLM.Temperature)
	a.logger.Info("configuration reloaded",
		"log_level", next.Log.Level,
		"llm_model", next.LLM.Model)
}

func (a *app) close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "":
		return store.OpenSQLite(cfg.Path)
	case "mysql":
		return store.OpenMySQL(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildRegistry loads the catalog directory, falling back to the builtin
// definitions when the directory is absent.
func buildRegistry(cfg config.CatalogConfig, logger *slog.Logger) (*catalog.Registry, error) {
	if cfg.Dir != "" {
		if _, err := os.Stat(cfg.Dir); err == nil {
			defs, err := catalog.LoadDir(cfg.Dir)
			if err != nil {
				return nil, err
			}
			logger.Info("catalog loaded", "dir", cfg.Dir, "definitions", len(defs))
			return catalog.NewRegistry(defs)
		}
	}
	logger.Info("catalog directory not found, using builtin definitions", "dir", cfg.Dir)
	return catalog.NewRegistry(catalog.Builtin())
}

func buildProvider(name, baseURL, apiKey string) (llm.Provider, error) {
	switch name {
	case "ollama":
		return llm.NewOllama(baseURL), nil
	case "openai":
		return llm.NewOpenAI(baseURL, apiKey), nil
	case "mock":
		return &llm.MockProvider{Response: `{"success": true, "output": "mock response"}`}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

func buildGateway(cfg config.LLMConfig, logger *slog.Logger) *llm.Gateway {
	primary, err := buildProvider(cfg.Provider, cfg.BaseURL, cfg.APIKey)
	if err != nil {
		logger.Warn("invalid primary provider, using mock", "error", err)
		primary = &llm.MockProvider{Response: `{"success": true, "output": "mock response"}`}
	}
	gw := llm.GatewayConfig{
		Primary:     primary,
		PrimaryName: cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		CallTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:      logger,
	}
	if cfg.MaxAttempts > 1 {
		rc := resilience.DefaultRetryConfig().WithMaxAttempts(cfg.MaxAttempts)
		gw.Retry = &rc
	}
	if cfg.FallbackProvider != "" {
		fallback, err := buildProvider(cfg.FallbackProvider, cfg.FallbackBaseURL, cfg.FallbackAPIKey)
		if err != nil {
			logger.Warn("invalid fallback provider, ignoring", "error", err)
		} else {
			gw.Fallback = fallback
			gw.FallbackName = cfg.FallbackProvider
			gw.FallbackModel = cfg.FallbackModel
		}
	}
	return llm.NewGateway(gw)
}
