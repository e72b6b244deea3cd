// Package session owns the inference session handles, exactly one live handle
// per conversation context.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paperlens/paperlens/plugin/ai"
)

// Registry maps context IDs to live session handles. Handles are destroyed
// and replaced, never mutated in place; no two live handles ever share a
// context ID.
type Registry struct {
	mu       sync.Mutex
	runtime  ai.Runtime
	cfg      *ai.Config
	sessions map[string]ai.Session
	touched  map[string]time.Time
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry creates a registry over the given runtime. Constructed once per
// process and passed by reference.
func NewRegistry(runtime ai.Runtime, cfg *ai.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		runtime:  runtime,
		cfg:      cfg,
		sessions: map[string]ai.Session{},
		touched:  map[string]time.Time{},
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the live handle for contextID, if any.
func (r *Registry) Get(contextID string) (ai.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[contextID]
	return s, ok
}

// CreateOrReuse returns the existing handle for contextID or creates a fresh
// one with the given options.
func (r *Registry) CreateOrReuse(ctx context.Context, contextID string, opts ai.SessionOptions) (ai.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[contextID]; ok {
		r.touched[contextID] = r.now()
		return s, nil
	}
	s, err := r.runtime.CreateSession(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", contextID, err)
	}
	r.sessions[contextID] = s
	r.touched[contextID] = r.now()
	r.logger.Debug("session created", slog.String("thread_id", contextID))
	return s, nil
}

// Destroy releases the handle for contextID. No-op if absent.
func (r *Registry) Destroy(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(contextID)
}

// CloneWithHistory destroys the current handle for contextID and creates a
// replacement seeded from conversation state: one system message carrying the
// base instructions plus the rolling summary, followed by the recent raw
// turns. This reconstructs enough working memory for a coherent continuation
// despite the reset token counter.
func (r *Registry) CloneWithHistory(ctx context.Context, contextID string, state *ai.ConversationState, systemPrompt string, opts ai.SessionOptions) (ai.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.destroyLocked(contextID)

	seeded := SeedOptions(state, systemPrompt, r.cfg.RecentWindow, opts)
	s, err := r.runtime.CreateSession(ctx, seeded)
	if err != nil {
		return nil, fmt.Errorf("clone session for %s: %w", contextID, err)
	}
	r.sessions[contextID] = s
	r.touched[contextID] = r.now()
	r.logger.Debug("session cloned",
		slog.String("thread_id", contextID),
		slog.Int("seed_messages", len(seeded.SeedMessages)),
		slog.Bool("has_summary", state != nil && state.Summary != ""))
	return s, nil
}

// Metrics returns the token accounting snapshot for contextID's handle.
func (r *Registry) Metrics(contextID string) (ai.SessionMetrics, bool) {
	s, ok := r.Get(contextID)
	if !ok {
		return ai.SessionMetrics{}, false
	}
	return s.Metrics(), true
}

// DestroyAll releases every live handle. Called on daemon shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.sessions {
		r.destroyLocked(id)
	}
}

// DestroyIdle releases every handle untouched for longer than maxIdle and
// returns how many were released.
func (r *Registry) DestroyIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	released := 0
	for id, last := range r.touched {
		if last.Before(cutoff) {
			r.destroyLocked(id)
			released++
		}
	}
	return released
}

func (r *Registry) destroyLocked(contextID string) {
	if s, ok := r.sessions[contextID]; ok {
		s.Destroy()
		delete(r.sessions, contextID)
		delete(r.touched, contextID)
		r.logger.Debug("session destroyed", slog.String("thread_id", contextID))
	}
}

// SeedOptions builds the session options for a state-seeded session.
func SeedOptions(state *ai.ConversationState, systemPrompt string, recentWindow int, opts ai.SessionOptions) ai.SessionOptions {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if state != nil && state.Summary != "" {
		sb.WriteString("\n\nConversation so far:\n")
		sb.WriteString(state.Summary)
	}
	opts.SystemPrompt = sb.String()
	if state != nil {
		opts.SeedMessages = ai.TailMessages(state.RecentMessages, recentWindow)
	} else {
		opts.SeedMessages = nil
	}
	return opts
}
