package llm

import (
	"context"
	"strings"

	"github.com/meliorworks/melior/pkg/errors"
)

// MockProvider is a canned Provider for tests. ChatFunc, when set, handles
// the call outright; otherwise Err or Response is returned. Calls and
// LastRequest record what the code under test actually sent.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	Calls       int
	LastRequest ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.Calls++
	m.LastRequest = req
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Usage: mockUsage(req, m.Response)}, nil
}

func mockUsage(req ChatRequest, response string) Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(strings.Fields(msg.Content))
	}
	completion := len(strings.Fields(response))
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// FailingMockProvider fails every call.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, errors.New(errors.CodeLLMError, "mock provider failure", nil).
		WithRecoverable(true)
}
