package llm

import (
	"context"
	"testing"
	"time"

	"github.com/meliorworks/melior/pkg/errors"
	"github.com/meliorworks/melior/pkg/resilience"
)

func testMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: "You are a helpful specialist."},
		{Role: RoleUser, Content: "Summarize the quarterly numbers."},
	}
}

func TestGatewayPrimarySucceeds(t *testing.T) {
	primary := &MockProvider{Response: "primary answer"}
	fallback := &MockProvider{Response: "fallback answer"}
	g := NewGateway(GatewayConfig{Primary: primary, Fallback: fallback, Model: "test-model"})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != "primary answer" {
		t.Errorf("content = %q, want primary answer", got)
	}
	if fallback.Calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.Calls)
	}
}

func TestGatewayFallsBackOnce(t *testing.T) {
	fallback := &MockProvider{Response: "fallback answer"}
	g := NewGateway(GatewayConfig{
		Primary:  &FailingMockProvider{},
		Fallback: fallback,
		Model:    "test-model",
	})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != "fallback answer" {
		t.Errorf("content = %q, want fallback answer", got)
	}
	if fallback.Calls != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.Calls)
	}
}

func TestGatewayFallbackModel(t *testing.T) {
	var seenModel string
	fallback := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		seenModel = req.Model
		return &ChatResponse{Content: "fallback answer"}, nil
	}}
	g := NewGateway(GatewayConfig{
		Primary:       &FailingMockProvider{},
		Fallback:      fallback,
		Model:         "big-model",
		FallbackModel: "small-model",
	})

	g.Complete(context.Background(), testMessages(), Options{})
	if seenModel != "small-model" {
		t.Errorf("fallback model = %q, want small-model", seenModel)
	}

	// A per-call override wins over the configured fallback model.
	g.Complete(context.Background(), testMessages(), Options{Model: "override-model"})
	if seenModel != "override-model" {
		t.Errorf("fallback model = %q, want override-model", seenModel)
	}
}

func TestGatewayDegradesWhenAllFail(t *testing.T) {
	g := NewGateway(GatewayConfig{
		Primary:  &FailingMockProvider{},
		Fallback: &FailingMockProvider{},
	})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != DegradedResponse {
		t.Errorf("content = %q, want DegradedResponse", got)
	}
}

func TestGatewayDegradesWithoutFallback(t *testing.T) {
	g := NewGateway(GatewayConfig{Primary: &FailingMockProvider{}})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != DegradedResponse {
		t.Errorf("content = %q, want DegradedResponse", got)
	}
}

func TestGatewayEmptyContentIsFailure(t *testing.T) {
	fallback := &MockProvider{Response: "non-empty"}
	g := NewGateway(GatewayConfig{
		Primary:  &MockProvider{Response: "   "},
		Fallback: fallback,
	})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != "non-empty" {
		t.Errorf("content = %q, want fallback content", got)
	}
}

func TestGatewayTimeoutTriggersFallback(t *testing.T) {
	slow := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &ChatResponse{Content: "too late"}, nil
		}
	}}
	fallback := &MockProvider{Response: "fast answer"}
	g := NewGateway(GatewayConfig{
		Primary:     slow,
		Fallback:    fallback,
		CallTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != "fast answer" {
		t.Errorf("content = %q, want fast answer", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("complete took %v, timeout not applied", elapsed)
	}
}

func TestGatewayPerCallModelOverride(t *testing.T) {
	var seenModel string
	primary := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		seenModel = req.Model
		return &ChatResponse{Content: "ok"}, nil
	}}
	g := NewGateway(GatewayConfig{Primary: primary, Model: "default-model"})

	g.Complete(context.Background(), testMessages(), Options{Model: "override-model"})
	if seenModel != "override-model" {
		t.Errorf("model = %q, want override-model", seenModel)
	}
	g.Complete(context.Background(), testMessages(), Options{})
	if seenModel != "default-model" {
		t.Errorf("model = %q, want default-model", seenModel)
	}
}

func TestGatewayRetriesPrimary(t *testing.T) {
	attempts := 0
	primary := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New(errors.CodeLLMError, "transient", nil).WithRecoverable(true)
		}
		return &ChatResponse{Content: "third time lucky"}, nil
	}}
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}
	g := NewGateway(GatewayConfig{Primary: primary, Retry: &retry})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != "third time lucky" {
		t.Errorf("content = %q, want third attempt response", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestGatewayNoRetryByDefault(t *testing.T) {
	primary := &MockProvider{Err: errors.New(errors.CodeLLMError, "down", nil).WithRecoverable(true)}
	g := NewGateway(GatewayConfig{Primary: primary})

	got := g.Complete(context.Background(), testMessages(), Options{})
	if got != DegradedResponse {
		t.Errorf("content = %q, want DegradedResponse", got)
	}
	if primary.Calls != 1 {
		t.Errorf("primary called %d times, want exactly 1", primary.Calls)
	}
}

func TestGatewayZeroTemperatureOverride(t *testing.T) {
	primary := &MockProvider{Response: "deterministic"}
	g := NewGateway(GatewayConfig{Primary: primary, Temperature: 0.7})

	g.Complete(context.Background(), testMessages(), Options{})
	if primary.LastRequest.Temperature != 0.7 {
		t.Errorf("temperature = %v, want configured 0.7", primary.LastRequest.Temperature)
	}

	zero := 0.0
	g.Complete(context.Background(), testMessages(), Options{Temperature: &zero})
	if primary.LastRequest.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", primary.LastRequest.Temperature)
	}
}

func TestGatewaySetOptions(t *testing.T) {
	primary := &MockProvider{Response: "ok"}
	g := NewGateway(GatewayConfig{Primary: primary, Model: "old-model", Temperature: 0.4})

	g.SetOptions("new-model", "", 0.9)
	g.Complete(context.Background(), testMessages(), Options{})
	if primary.LastRequest.Model != "new-model" {
		t.Errorf("model = %q, want new-model after SetOptions", primary.LastRequest.Model)
	}
	if primary.LastRequest.Temperature != 0.9 {
		t.Errorf("temperature = %v, want 0.9 after SetOptions", primary.LastRequest.Temperature)
	}

	// An empty model keeps the previous one.
	g.SetOptions("", "", 0.2)
	g.Complete(context.Background(), testMessages(), Options{})
	if primary.LastRequest.Model != "new-model" {
		t.Errorf("model = %q, want new-model retained", primary.LastRequest.Model)
	}
}
