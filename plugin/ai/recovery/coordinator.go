// Package recovery wraps one conversational turn in the bounded retry
// policies: whole-turn retries with session reconstruction on first-fragment
// timeouts, and generation retries with excerpt shrinkage on capacity errors.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/contextbudget"
	"github.com/paperlens/paperlens/plugin/ai/stream"
	"github.com/paperlens/paperlens/plugin/ai/timeout"
)

// Planner validates and degrades the prospective prompt. Implemented by the
// context budget planner.
type Planner interface {
	Plan(ctx context.Context, req *contextbudget.Request) (*contextbudget.Result, error)
}

// SessionRebuilder reconstructs a thread's session between timeout attempts.
// Implemented by the session registry.
type SessionRebuilder interface {
	CloneWithHistory(ctx context.Context, threadID string, state *ai.ConversationState, systemPrompt string, opts ai.SessionOptions) (ai.Session, error)
}

// TurnRequest carries one turn through the retry state machine.
type TurnRequest struct {
	ThreadID       string
	Session        ai.Session
	Excerpts       []ai.ContextExcerpt
	Message        string
	History        []ai.Message
	State          *ai.ConversationState
	SystemPrompt   string
	SessionOptions ai.SessionOptions
	Topic          string
	Schema         json.RawMessage

	// EmitDelta receives display-safe answer deltas as they stream.
	EmitDelta func(delta string)
	// TargetAlive reports whether the destination is still there. Checked
	// before each retry attempt; a dead target aborts the turn silently.
	TargetAlive func() bool
}

// TurnResult is a completed turn.
type TurnResult struct {
	Answer     string
	Sources    []string
	Excerpts   []ai.ContextExcerpt
	Session    ai.Session
	State      *ai.ConversationState
	Summarized bool
}

// Coordinator drives the two nested retry dimensions for a turn.
type Coordinator struct {
	planner              Planner
	rebuilder            SessionRebuilder
	logger               *slog.Logger
	firstFragmentTimeout time.Duration
	retryDelay           time.Duration
}

// NewCoordinator creates a coordinator with the standard deadlines.
func NewCoordinator(planner Planner, rebuilder SessionRebuilder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		planner:              planner,
		rebuilder:            rebuilder,
		logger:               logger,
		firstFragmentTimeout: timeout.FirstFragment,
		retryDelay:           timeout.RetryDelay,
	}
}

// attemptState is the mutable carry between attempts: the session and state
// survive excerpt shrinkage, reconstruction replaces the session.
type attemptState struct {
	session    ai.Session
	excerpts   []ai.ContextExcerpt
	state      *ai.ConversationState
	summarized bool
}

// ExecuteTurn runs the turn to completion or to a terminal failure. Timeout
// attempts reconstruct the session between tries; the final failed attempt
// does not reconstruct.
func (c *Coordinator) ExecuteTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	st := &attemptState{
		session:  req.Session,
		excerpts: req.Excerpts,
		state:    req.State,
	}

	for attempt := 1; attempt <= timeout.MaxTimeoutAttempts; attempt++ {
		if req.TargetAlive != nil && !req.TargetAlive() {
			return nil, ai.NewTurnError(ai.FailureStaleTarget, errors.New("destination gone"))
		}

		result, err := c.runWithCapacityRetries(ctx, req, st)
		if err == nil {
			return result, nil
		}

		classified := ai.Classify(err)
		if classified.Kind != ai.FailureTimeout || attempt == timeout.MaxTimeoutAttempts {
			return nil, classified
		}

		c.logger.Warn("first fragment timed out, reconstructing session",
			slog.String("thread_id", req.ThreadID),
			slog.Int("attempt", attempt))
		rebuilt, rerr := c.rebuilder.CloneWithHistory(ctx, req.ThreadID, st.state, req.SystemPrompt, req.SessionOptions)
		if rerr != nil {
			return nil, ai.NewTurnError(ai.FailureFatal, rerr)
		}
		st.session = rebuilt

		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, ai.Classify(ctx.Err())
		}
	}
	return nil, ai.NewTurnError(ai.FailureTimeout, ai.ErrFirstFragmentTimeout)
}

// runWithCapacityRetries is one timeout attempt: plan, generate, and on
// capacity errors shrink the excerpt set and try again with the same session.
func (c *Coordinator) runWithCapacityRetries(ctx context.Context, req *TurnRequest, st *attemptState) (*TurnResult, error) {
	for attempt := 1; ; attempt++ {
		planned, err := c.planner.Plan(ctx, &contextbudget.Request{
			ThreadID:       req.ThreadID,
			Session:        st.session,
			Excerpts:       st.excerpts,
			Message:        req.Message,
			History:        req.History,
			State:          st.state,
			SystemPrompt:   req.SystemPrompt,
			SessionOptions: req.SessionOptions,
			Topic:          req.Topic,
		})
		if err != nil {
			return nil, err
		}
		st.session = planned.Session
		st.state = planned.State
		st.excerpts = planned.Excerpts
		if planned.Summarized {
			st.summarized = true
		}

		answer, sources, err := c.generate(ctx, st.session, planned.Prompt, req.Schema, req.EmitDelta)
		if err == nil {
			return &TurnResult{
				Answer:     answer,
				Sources:    sources,
				Excerpts:   st.excerpts,
				Session:    st.session,
				State:      st.state,
				Summarized: st.summarized,
			}, nil
		}

		classified := ai.Classify(err)
		if classified.Kind != ai.FailureCapacity || attempt >= timeout.MaxCapacityAttempts {
			return nil, classified
		}
		c.logger.Warn("generation hit capacity, shrinking excerpts",
			slog.String("thread_id", req.ThreadID),
			slog.Int("attempt", attempt),
			slog.Int("excerpts", len(st.excerpts)))
		st.excerpts = contextbudget.TrimForRetry(st.excerpts)
	}
}

// generate streams one answer, racing the first fragment against the
// first-fragment deadline and decoding deltas as they arrive.
func (c *Coordinator) generate(ctx context.Context, session ai.Session, prompt string, schema json.RawMessage, emit func(string)) (string, []string, error) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fragments, errs := session.GenerateStream(genCtx, prompt, schema)
	decoder := stream.New()

	timer := time.NewTimer(c.firstFragmentTimeout)
	defer timer.Stop()

	gotFirst := false
	var streamErr error
	for fragments != nil || errs != nil {
		var deadline <-chan time.Time
		if !gotFirst {
			deadline = timer.C
		}
		select {
		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			gotFirst = true
			if delta := decoder.Feed(frag); delta != "" && emit != nil {
				emit(delta)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				streamErr = err
			}
			errs = nil
		case <-deadline:
			return "", nil, ai.ErrFirstFragmentTimeout
		}
	}
	if streamErr != nil {
		return "", nil, streamErr
	}

	answer, sources := decoder.Finalize()
	return answer, sources, nil
}

// SetTimeouts overrides the deadlines. Tests use short values.
func (c *Coordinator) SetTimeouts(firstFragment, retryDelay time.Duration) {
	c.firstFragmentTimeout = firstFragment
	c.retryDelay = retryDelay
}
