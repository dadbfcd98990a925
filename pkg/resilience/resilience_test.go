// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/meliorworks/melior/pkg/errors"
)

func TestWithTimeoutResultCompletes(t *testing.T) {
	got, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: time.Second}, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected 'done', got %q", got)
	}
}

func TestWithTimeoutResultExpires(t *testing.T) {
	_, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: 10 * time.Millisecond}, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return "late", nil
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Errorf("expected CodeTimeout, got %v", err)
	}
}

func TestWithTimeoutZeroDurationRunsInline(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{}, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStaticFallback(t *testing.T) {
	fb := &StaticFallback[string]{Value: "degraded"}
	got, err := WithFallback(context.Background(), func(ctx context.Context) (string, error) {
		return "", stderrors.New("primary failed")
	}, fb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "degraded" {
		t.Errorf("expected 'degraded', got %q", got)
	}
}

func TestChainedFallback(t *testing.T) {
	failing := FallbackFunc[int](func(ctx context.Context, primaryErr error) (int, error) {
		return 0, stderrors.New("secondary failed")
	})
	chain := &ChainedFallback[int]{Fallbacks: []FallbackStrategy[int]{
		failing,
		&StaticFallback[int]{Value: 42},
	}}

	got, err := chain.Execute(context.Background(), stderrors.New("primary failed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestFallbackSkippedOnSuccess(t *testing.T) {
	got, err := WithFallback(context.Background(), func(ctx context.Context) (string, error) {
		return "primary", nil
	}, &StaticFallback[string]{Value: "degraded"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Errorf("expected 'primary', got %q", got)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)
	err := cfg.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(5).WithInitialDelay(time.Millisecond)
	err := cfg.Do(context.Background(), func() error {
		attempts++
		return errors.New(errors.CodeGovernance, "not retryable", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for unrecoverable error, got %d", attempts)
	}
}
