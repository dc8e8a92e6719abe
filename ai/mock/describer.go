package mock

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// MockDescriber is a test double for ai.Describer.
type MockDescriber struct {
	// DescribeImageFunc is called by DescribeImage if set.
	// If nil, the description is derived from the file name.
	DescribeImageFunc func(ctx context.Context, path string) (string, error)

	callCount atomic.Int64
}

// NewMockDescriber creates a mock describer with default behavior.
func NewMockDescriber() *MockDescriber {
	return &MockDescriber{}
}

// DescribeImage returns "image of <name>" for a file named <name>.<ext> by default.
func (m *MockDescriber) DescribeImage(ctx context.Context, path string) (string, error) {
	m.callCount.Add(1)

	if m.DescribeImageFunc != nil {
		return m.DescribeImageFunc(ctx, path)
	}
	base := filepath.Base(path)
	return "image of " + strings.TrimSuffix(base, filepath.Ext(base)), nil
}

// CallCount returns the number of times DescribeImage was called.
func (m *MockDescriber) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockDescriber) Reset() {
	m.callCount.Store(0)
	m.DescribeImageFunc = nil
}
