package llm

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meliorworks/melior/pkg/errors"
	"github.com/meliorworks/melior/pkg/resilience"
	"github.com/meliorworks/melior/pkg/telemetry"
)

// DegradedResponse is returned by Complete when every configured provider
// fails. Callers can rely on Complete never returning an error.
const DegradedResponse = "[reasoning unavailable] no provider produced a response"

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 45 * time.Second

var errEmptyResponse = errors.New(errors.CodeLLMError, "provider returned empty content", nil)

// Options are per-call overrides for Complete. Temperature is a pointer so
// an explicit zero is distinguishable from "use the gateway default".
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// GatewayConfig wires the gateway to its providers.
type GatewayConfig struct {
	// Primary is required.
	Primary     Provider
	PrimaryName string

	// Fallback is optional; at most one fallback attempt is made.
	Fallback     Provider
	FallbackName string

	Model string
	// FallbackModel is used on the fallback attempt; empty means Model.
	FallbackModel string
	Temperature   float64
	// CallTimeout bounds each provider attempt; zero means DefaultCallTimeout.
	CallTimeout time.Duration
	// Retry, when set, retries each provider attempt; nil means one attempt,
	// which keeps the primary-then-fallback sequence exact.
	Retry *resilience.RetryConfig

	Logger *slog.Logger
}

// Gateway fronts one or two text-generation providers. A call tries the
// primary, falls back once, and degrades to a fixed string if both fail.
// Complete never returns an error. Model and temperature defaults may be
// swapped at runtime via SetOptions when configuration is reloaded.
type Gateway struct {
	cfg GatewayConfig

	mu            sync.RWMutex
	model         string
	fallbackModel string
	temperature   float64
}

// NewGateway validates and builds a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.PrimaryName == "" {
		cfg.PrimaryName = "primary"
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = "fallback"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{
		cfg:           cfg,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		temperature:   cfg.Temperature,
	}
}

// SetOptions replaces the default model, fallback model and temperature.
// In-flight calls keep the values they started with.
func (g *Gateway) SetOptions(model, fallbackModel string, temperature float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if model != "" {
		g.model = model
	}
	g.fallbackModel = fallbackModel
	g.temperature = temperature
}

func (g *Gateway) defaults() (model, fallbackModel string, temperature float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model, g.fallbackModel, g.temperature
}

// Complete sends the conversation and returns free text. Provider failures
// are absorbed by a fallback chain: after the primary and (if configured)
// the fallback both fail, the fixed DegradedResponse string is returned
// instead of an error.
func (g *Gateway) Complete(ctx context.Context, messages []Message, opts Options) string {
	model, fallbackModel, temperature := g.defaults()
	if opts.Model != "" {
		model = opts.Model
		fallbackModel = opts.Model
	} else if fallbackModel == "" {
		fallbackModel = model
	}
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
	}

	chain := make([]resilience.FallbackStrategy[string], 0, 2)
	if g.cfg.Fallback != nil {
		chain = append(chain, resilience.FallbackFunc[string](func(ctx context.Context, primaryErr error) (string, error) {
			telemetry.RecordGatewayFallback(ctx, g.cfg.PrimaryName)
			freq := req
			freq.Model = fallbackModel
			content, err := g.call(ctx, g.cfg.Fallback, freq)
			if err != nil {
				g.cfg.Logger.Warn("fallback provider failed",
					"provider", g.cfg.FallbackName,
					"model", freq.Model,
					"error", err)
			}
			return content, err
		}))
	}
	chain = append(chain, resilience.FallbackFunc[string](func(context.Context, error) (string, error) {
		g.cfg.Logger.Error("all providers failed, degrading", "model", model)
		return DegradedResponse, nil
	}))

	content, _ := resilience.WithFallback(ctx, func(ctx context.Context) (string, error) {
		content, err := g.call(ctx, g.cfg.Primary, req)
		if err != nil {
			g.cfg.Logger.Warn("primary provider failed",
				"provider", g.cfg.PrimaryName,
				"model", req.Model,
				"error", err)
		}
		return content, err
	}, &resilience.ChainedFallback[string]{Fallbacks: chain})
	return content
}

func (g *Gateway) call(ctx context.Context, p Provider, req ChatRequest) (string, error) {
	attempt := func() (string, error) {
		resp, err := resilience.WithTimeoutResult(ctx,
			resilience.TimeoutConfig{Duration: g.cfg.CallTimeout},
			func(ctx context.Context) (*ChatResponse, error) {
				return p.Chat(ctx, req)
			})
		if err != nil {
			return "", err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return "", errEmptyResponse
		}
		return resp.Content, nil
	}

	if g.cfg.Retry == nil {
		return attempt()
	}
	var content string
	err := g.cfg.Retry.Do(ctx, func() error {
		c, aerr := attempt()
		if aerr != nil {
			return aerr
		}
		content = c
		return nil
	})
	return content, err
}
