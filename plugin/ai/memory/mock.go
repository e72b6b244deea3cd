package memory

import (
	"context"
	"sync"

	"github.com/paperlens/paperlens/plugin/ai"
)

// MockSummarizer is a mock implementation of Summarizer for testing.
type MockSummarizer struct {
	mu sync.Mutex

	// SummarizeFn, when set, handles Summarize calls.
	SummarizeFn func(messages []ai.Message, topic string) (string, error)

	calls [][]ai.Message
}

// Summarize records the call and delegates to SummarizeFn.
func (m *MockSummarizer) Summarize(_ context.Context, messages []ai.Message, topic string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	fn := m.SummarizeFn
	m.mu.Unlock()
	if fn != nil {
		return fn(messages, topic)
	}
	return "condensed", nil
}

// Calls returns the message spans passed to Summarize, in call order.
func (m *MockSummarizer) Calls() [][]ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CallCount returns how many times Summarize was invoked.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockStateStore is an in-memory implementation of StateStore for testing.
type MockStateStore struct {
	mu sync.Mutex

	states map[string]*ai.ConversationState
	saves  int

	// GetErr and SaveErr force failures.
	GetErr  error
	SaveErr error
}

// NewMockStateStore creates an empty mock store.
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{states: map[string]*ai.ConversationState{}}
}

// GetConversationState returns the stored state, a fresh one if absent.
func (m *MockStateStore) GetConversationState(_ context.Context, threadID string) (*ai.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if state, ok := m.states[threadID]; ok {
		return state.Clone(), nil
	}
	return ai.NewConversationState(), nil
}

// SaveConversationState stores the state.
func (m *MockStateStore) SaveConversationState(_ context.Context, threadID string, state *ai.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.states[threadID] = state.Clone()
	m.saves++
	return nil
}

// SaveCount returns how many saves succeeded.
func (m *MockStateStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ Summarizer = (*MockSummarizer)(nil)
var _ StateStore = (*MockStateStore)(nil)
