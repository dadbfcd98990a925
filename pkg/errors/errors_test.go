// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Melior.
package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	me := New(CodeLLMError, "provider call failed", cause)

	if me.Code != CodeLLMError {
		t.Errorf("expected CodeLLMError, got %v", me.Code)
	}
	if me.Message != "provider call failed" {
		t.Errorf("expected message 'provider call failed', got %q", me.Message)
	}
	if me.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(me, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	me := New(CodeStoreError, "record execution failed", nil)
	me.WithContext("agent_id", "email-composer").
		WithContext("duration_ms", 2000)

	if me.Context["agent_id"] != "email-composer" {
		t.Errorf("expected context agent_id to be 'email-composer'")
	}
	if me.Context["duration_ms"] == nil {
		t.Errorf("expected context duration_ms to be set")
	}
}

func TestWithRecoverable(t *testing.T) {
	me := New(CodeTimeout, "provider timed out", nil)
	if me.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	me.WithRecoverable(true)
	if !me.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		me       *MeliorError
		expected string
	}{
		{
			name:     "with cause",
			me:       New(CodeTimeout, "operation timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] operation timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			me:       New(CodeNotFound, "agent not found", nil),
			expected: "[NOT_FOUND] agent not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.me.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	me := New(CodeGovernance, "capability requires approved request", nil)
	data, err := json.Marshal(me)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["code"] != string(CodeGovernance) {
		t.Errorf("expected code %q, got %v", CodeGovernance, decoded["code"])
	}
}

func TestAsMeliorError(t *testing.T) {
	if AsMeliorError(nil) != nil {
		t.Errorf("expected nil for nil error")
	}

	me := New(CodeNotFound, "missing", nil)
	if got := AsMeliorError(me); got != me {
		t.Errorf("expected same error back")
	}

	plain := errors.New("plain")
	wrapped := AsMeliorError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("expected wrapped plain error to be CodeInternal, got %v", wrapped.Code)
	}
	if !errors.Is(wrapped, plain) {
		t.Errorf("expected cause to be preserved")
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{CodeNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeTimeout, 408},
		{CodeRateLimit, 429},
		{CodeGovernance, 409},
		{CodeInternal, 500},
		{CodeLLMError, 500},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x", nil).StatusCode; got != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.code, tt.status, got)
		}
	}
}

func TestIsCode(t *testing.T) {
	me := New(CodeGovernance, "blocked", nil)
	if !IsCode(me, CodeGovernance) {
		t.Errorf("expected IsCode to match")
	}
	if IsCode(me, CodeNotFound) {
		t.Errorf("expected IsCode mismatch")
	}
	if IsCode(errors.New("plain"), CodeInternal) {
		t.Errorf("expected plain error not to match")
	}
}
