package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/memory"
)

// MockExtractor returns configured facts and records the exchanges it saw.
type MockExtractor struct {
	mu        sync.Mutex
	exchanges []memory.Exchange

	// Facts is returned by every Extract call.
	Facts []string

	// Err causes Extract to fail.
	Err error

	// Panic causes Extract to panic.
	Panic bool
}

func NewMockExtractor(facts ...string) *MockExtractor {
	return &MockExtractor{Facts: facts}
}

func (m *MockExtractor) Extract(_ context.Context, ex memory.Exchange) ([]string, error) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, ex)
	m.mu.Unlock()

	if m.Panic {
		panic("mock extractor panic")
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Facts, nil
}

// Exchanges returns the exchanges passed to Extract.
func (m *MockExtractor) Exchanges() []memory.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Exchange(nil), m.exchanges...)
}

var _ memory.Extractor = (*MockExtractor)(nil)
