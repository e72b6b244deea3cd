package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockRuntime is a mock implementation of Runtime for testing.
type MockRuntime struct {
	mu sync.Mutex

	// Quota is the input quota handed to every created session.
	Quota int
	// CreateErr, when set, fails CreateSession.
	CreateErr error
	// SessionFn, when set, customizes the session created for each call.
	// index is zero-based across the runtime's lifetime.
	SessionFn func(index int, opts SessionOptions) *MockSession
	// CompleteFn, when set, handles Complete calls.
	CompleteFn func(ctx context.Context, messages []Message) (string, error)

	created      []*MockSession
	completeLogs [][]Message
}

// NewMockRuntime creates a mock runtime with the given input quota.
func NewMockRuntime(quota int) *MockRuntime {
	return &MockRuntime{Quota: quota}
}

// CreateSession creates a new mock session.
func (m *MockRuntime) CreateSession(_ context.Context, opts SessionOptions) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	opts = opts.Normalize()
	var s *MockSession
	if m.SessionFn != nil {
		s = m.SessionFn(len(m.created), opts)
	}
	if s == nil {
		s = NewMockSession(m.Quota)
	}
	s.Opts = opts
	if s.quota == 0 {
		s.quota = m.Quota
	}
	if s.usage == 0 {
		s.usage = EstimateTokens(sessionSeedText(opts))
	}
	m.created = append(m.created, s)
	return s, nil
}

// Complete performs a mock synchronous exchange.
func (m *MockRuntime) Complete(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.completeLogs = append(m.completeLogs, messages)
	fn := m.CompleteFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, messages)
	}
	return "mock summary", nil
}

// CreateCount returns how many sessions the runtime has created.
func (m *MockRuntime) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// SessionAt returns the i-th created session, nil if out of range.
func (m *MockRuntime) SessionAt(i int) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.created) {
		return nil
	}
	return m.created[i]
}

// CompleteCalls returns the message lists passed to Complete.
func (m *MockRuntime) CompleteCalls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeLogs
}

// MockSession is a mock implementation of Session for testing.
type MockSession struct {
	mu sync.Mutex

	// Opts are the options the session was created with.
	Opts SessionOptions
	// MeasureFn, when set, overrides token measurement.
	MeasureFn func(text string) (int, error)
	// StreamFn, when set, supplies the fragments and the terminal error for
	// each GenerateStream call. call is zero-based per session.
	StreamFn func(call int, prompt string) ([]string, error)
	// FirstFragmentDelay delays the first fragment of every stream, for
	// exercising the first-fragment deadline.
	FirstFragmentDelay time.Duration

	quota     int
	usage     int
	destroyed bool
	prompts   []string
}

// NewMockSession creates a mock session with the given input quota.
func NewMockSession(quota int) *MockSession {
	return &MockSession{quota: quota}
}

// InputUsage returns the mock's accumulated usage.
func (s *MockSession) InputUsage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// InputQuota returns the mock's quota.
func (s *MockSession) InputQuota() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

// Metrics returns a snapshot of the mock's token accounting.
func (s *MockSession) Metrics() SessionMetrics {
	usage := s.InputUsage()
	quota := s.InputQuota()
	ratio := 0.0
	if quota > 0 {
		ratio = float64(usage) / float64(quota)
	}
	return SessionMetrics{InputUsage: usage, InputQuota: quota, UsageRatio: ratio}
}

// SetUsage overrides the accumulated usage.
func (s *MockSession) SetUsage(usage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = usage
}

// MeasureInputTokens measures via MeasureFn or the default estimator.
func (s *MockSession) MeasureInputTokens(_ context.Context, text string) (int, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return 0, ErrSessionDestroyed
	}
	fn := s.MeasureFn
	s.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return EstimateTokens(text), nil
}

// GenerateStream emits the configured fragments on a goroutine.
func (s *MockSession) GenerateStream(ctx context.Context, prompt string, _ json.RawMessage) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error, 1)

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		close(fragments)
		errs <- ErrSessionDestroyed
		close(errs)
		return fragments, errs
	}
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	fn := s.StreamFn
	delay := s.FirstFragmentDelay
	s.mu.Unlock()

	go func() {
		defer close(fragments)
		defer close(errs)

		parts := []string{`{"answer": "mock answer", "sources": []}`}
		var terminal error
		if fn != nil {
			parts, terminal = fn(call, prompt)
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		for _, part := range parts {
			select {
			case fragments <- part:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if terminal != nil {
			errs <- terminal
			return
		}

		s.mu.Lock()
		s.usage += EstimateTokens(prompt)
		s.mu.Unlock()
	}()

	return fragments, errs
}

// Destroy marks the session destroyed.
func (s *MockSession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (s *MockSession) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Prompts returns the prompts passed to GenerateStream, in call order.
func (s *MockSession) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// PromptAt returns the i-th prompt, empty string if out of range.
func (s *MockSession) PromptAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.prompts) {
		return ""
	}
	return s.prompts[i]
}

var _ Runtime = (*MockRuntime)(nil)
var _ Session = (*MockSession)(nil)

// ErrMock is a reusable opaque error for tests.
var ErrMock = fmt.Errorf("mock failure")
