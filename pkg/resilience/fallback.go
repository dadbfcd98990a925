// SPDX-License-Identifier: Apache-2.0
// Package resilience provides timeout, retry and fallback patterns for Melior.
package resilience

import (
	"context"

	"github.com/meliorworks/melior/pkg/errors"
)

// FallbackStrategy defines a fallback behavior when the primary operation fails.
type FallbackStrategy[T any] interface {
	// Execute runs the fallback operation.
	Execute(ctx context.Context, primaryErr error) (T, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc[T]) Execute(ctx context.Context, err error) (T, error) {
	return f(ctx, err)
}

// StaticFallback returns a static value on failure.
type StaticFallback[T any] struct {
	Value T
}

// Execute implements FallbackStrategy.
func (s *StaticFallback[T]) Execute(_ context.Context, _ error) (T, error) {
	return s.Value, nil
}

// ErrorFallback returns an error with additional context.
type ErrorFallback[T any] struct {
	Message string
}

// Execute implements FallbackStrategy.
func (e *ErrorFallback[T]) Execute(_ context.Context, primaryErr error) (T, error) {
	var zero T
	return zero, errors.New(errors.CodeInternal, e.Message, primaryErr).
		WithContext("fallback", "error").
		WithRecoverable(false)
}

// ChainedFallback tries multiple fallbacks in sequence.
type ChainedFallback[T any] struct {
	Fallbacks []FallbackStrategy[T]
}

// Execute implements FallbackStrategy.
func (c *ChainedFallback[T]) Execute(ctx context.Context, primaryErr error) (T, error) {
	var zero T
	lastErr := primaryErr

	for _, fallback := range c.Fallbacks {
		value, err := fallback.Execute(ctx, lastErr)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return zero, lastErr
}

// WithFallback executes fn, and on error, uses the fallback strategy.
func WithFallback[T any](ctx context.Context, fn func(ctx context.Context) (T, error), fallback FallbackStrategy[T]) (T, error) {
	value, err := fn(ctx)
	if err == nil {
		return value, nil
	}

	return fallback.Execute(ctx, err)
}
