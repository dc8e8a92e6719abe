package mock

import (
	"context"
	"sync/atomic"
)

// DefaultReply is returned by MockCompleter when no CompleteFunc is set.
const DefaultReply = "0.5"

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete returns DefaultReply.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	callCount atomic.Int64
}

// NewMockCompleter creates a mock completer with default behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns the injected reply or DefaultReply.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.callCount.Add(1)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return DefaultReply, nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockCompleter) Reset() {
	m.callCount.Store(0)
	m.CompleteFunc = nil
}
