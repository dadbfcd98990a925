// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Melior.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Melior errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeContextLost indicates context was cancelled or lost.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeLLMError indicates a reasoning provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeStoreError indicates a capability store error.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeGovernance indicates a governance contract violation, such as
	// creating a capability without an approved improvement request.
	CodeGovernance ErrorCode = "GOVERNANCE_VIOLATION"
)

// MeliorError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type MeliorError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // For HTTP responses
}

// Error implements the error interface.
func (e *MeliorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *MeliorError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *MeliorError) MarshalJSON() ([]byte, error) {
	type Alias MeliorError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new MeliorError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *MeliorError {
	return &MeliorError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *MeliorError) WithContext(key string, value interface{}) *MeliorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *MeliorError) WithAttribute(key, value string) *MeliorError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *MeliorError) WithRecoverable(recoverable bool) *MeliorError {
	e.Recoverable = recoverable
	return e
}

// AsMeliorError attempts to convert an error to a MeliorError.
// Returns the error as MeliorError if it is one, or wraps it otherwise.
func AsMeliorError(err error) *MeliorError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MeliorError); ok {
		return me
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether err is a MeliorError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	me, ok := err.(*MeliorError)
	return ok && me.Code == code
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeGovernance:
		return 409
	default:
		return 500
	}
}
