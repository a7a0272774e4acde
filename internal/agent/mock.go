package agent

import (
	"context"
	"sync"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// ScriptFunc produces the result for the callNum-th call (1-based) to a
// MockProvider, given the prompt the engine built.
type ScriptFunc func(callNum int, prompt string) piece.CallResult

// MockProvider is a scripted Agent used by the engine's own test suite
// (and by any CLI user running against --provider mock) to deterministically
// drive scenarios without network access.
type MockProvider struct {
	mu     sync.Mutex
	script ScriptFunc
	calls  int
	log    []string
}

// NewMockProvider builds a MockProvider from an ordered list of canned
// responses: the n-th call receives responses[n-1], and calls beyond the
// list length repeat the last entry.
func NewMockProvider(responses []piece.CallResult) *MockProvider {
	return &MockProvider{
		script: func(callNum int, _ string) piece.CallResult {
			if len(responses) == 0 {
				return piece.CallResult{Status: piece.StatusDone}
			}
			idx := callNum - 1
			if idx >= len(responses) {
				idx = len(responses) - 1
			}
			return responses[idx]
		},
	}
}

// NewMockProviderFunc builds a MockProvider from an arbitrary scripting
// function, for scenarios needing to inspect the prompt.
func NewMockProviderFunc(script ScriptFunc) *MockProvider {
	return &MockProvider{script: script}
}

// Call implements piece.Agent.
func (m *MockProvider) Call(ctx context.Context, prompt string, opts piece.CallOptions) (piece.CallResult, error) {
	select {
	case <-ctx.Done():
		return piece.CallResult{}, ctx.Err()
	default:
	}
	if opts.AbortSignal != nil {
		select {
		case <-opts.AbortSignal:
			return piece.CallResult{}, context.Canceled
		default:
		}
	}

	m.mu.Lock()
	m.calls++
	n := m.calls
	m.log = append(m.log, prompt)
	m.mu.Unlock()

	result := m.script(n, prompt)
	if result.SessionID == "" && opts.SessionID != "" {
		result.SessionID = opts.SessionID
	}
	return result, nil
}

// CallCount returns the number of calls made so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns every prompt this provider received, in order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}
