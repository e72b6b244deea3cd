// Package contextbudget fits a prospective prompt into a session's measured
// input budget, degrading the prompt through an ordered set of strategies when
// it does not fit.
package contextbudget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paperlens/paperlens/plugin/ai"
)

// maxPlanAttempts bounds the measure-degrade loop before the planner collapses
// to the final fallback excerpt set.
const maxPlanAttempts = 8

// excerptDropPerAttempt is how many tail excerpts one trimming step removes.
const excerptDropPerAttempt = 2

// SessionRebuilder rebuilds a thread's session seeded from conversation state.
// Implemented by the session registry.
type SessionRebuilder interface {
	CloneWithHistory(ctx context.Context, threadID string, state *ai.ConversationState, systemPrompt string, opts ai.SessionOptions) (ai.Session, error)
}

// PreSummarizer compacts older history into the rolling summary. Implemented
// by the memory service.
type PreSummarizer interface {
	PerformPreSummarization(ctx context.Context, threadID string, history []ai.Message, state *ai.ConversationState, topic string) (*ai.ConversationState, error)
}

// Request carries everything one planning call needs.
type Request struct {
	ThreadID string
	Session  ai.Session
	// Excerpts arrive in retrieval-rank order; trimming drops from the tail,
	// rendering sorts by document order.
	Excerpts       []ai.ContextExcerpt
	Message        string
	History        []ai.Message
	State          *ai.ConversationState
	SystemPrompt   string
	SessionOptions ai.SessionOptions
	// Topic labels the conversation for the summarizer.
	Topic string
}

// Result is a validated prompt plus the possibly-refreshed session and state.
type Result struct {
	Prompt     string
	Excerpts   []ai.ContextExcerpt
	Session    ai.Session
	State      *ai.ConversationState
	Summarized bool
	Attempts   int
}

// Planner degrades prompts until they fit the live budget.
type Planner struct {
	cfg        *ai.Config
	rebuilder  SessionRebuilder
	summarizer PreSummarizer
	logger     *slog.Logger
}

// NewPlanner creates a planner. rebuilder and summarizer may be nil, which
// disables the summarize-then-retry strategy.
func NewPlanner(cfg *ai.Config, rebuilder SessionRebuilder, summarizer PreSummarizer, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{cfg: cfg, rebuilder: rebuilder, summarizer: summarizer, logger: logger}
}

// Plan measures the candidate prompt against the session's remaining input
// budget and applies degradation strategies in strict order until it fits.
// Returns a budget-exhausted TurnError when even the minimum prompt does not.
func (p *Planner) Plan(ctx context.Context, req *Request) (*Result, error) {
	session := req.Session
	state := req.State
	excerpts := append([]ai.ContextExcerpt(nil), req.Excerpts...)
	summarized := false
	attempts := 0

	for attempts < maxPlanAttempts {
		attempts++
		prompt := RenderPrompt(excerpts, req.Message)
		validation, err := p.validate(ctx, session, prompt)
		if err != nil {
			return nil, fmt.Errorf("measure prompt: %w", err)
		}
		if validation.Fits {
			return &Result{
				Prompt:     prompt,
				Excerpts:   excerpts,
				Session:    session,
				State:      state,
				Summarized: summarized,
				Attempts:   attempts,
			}, nil
		}

		p.logger.Debug("prompt over budget",
			slog.String("thread_id", req.ThreadID),
			slog.Int("attempt", attempts),
			slog.Int("measured_tokens", validation.MeasuredTokens),
			slog.Int("available_tokens", validation.AvailableTokens),
			slog.Int("excerpts", len(excerpts)))

		// Strategy 1: summarize older history and rebuild the session, once,
		// keeping the excerpt set intact.
		if !summarized && attempts == 1 && p.canSummarize(req) {
			newState, err := p.summarizer.PerformPreSummarization(ctx, req.ThreadID, req.History, state, req.Topic)
			if err != nil {
				p.logger.Warn("pre-summarization failed, falling back to trimming",
					slog.String("thread_id", req.ThreadID), slog.String("error", err.Error()))
			} else {
				session.Destroy()
				rebuilt, err := p.rebuilder.CloneWithHistory(ctx, req.ThreadID, newState, req.SystemPrompt, req.SessionOptions)
				if err != nil {
					return nil, fmt.Errorf("rebuild session: %w", err)
				}
				session = rebuilt
				state = newState
				summarized = true
				continue
			}
		}

		// Strategy 2: drop the two lowest-priority excerpts, floor at one.
		if len(excerpts) > 1 {
			keep := len(excerpts) - excerptDropPerAttempt
			if keep < 1 {
				keep = 1
			}
			excerpts = excerpts[:keep]
			continue
		}
		break
	}

	// Final fallback: collapse to the highest-priority original excerpts.
	for _, keep := range []int{2, 1} {
		if len(req.Excerpts) < keep {
			continue
		}
		attempts++
		fallback := append([]ai.ContextExcerpt(nil), req.Excerpts[:keep]...)
		prompt := RenderPrompt(fallback, req.Message)
		validation, err := p.validate(ctx, session, prompt)
		if err != nil {
			return nil, fmt.Errorf("measure prompt: %w", err)
		}
		if validation.Fits {
			return &Result{
				Prompt:     prompt,
				Excerpts:   fallback,
				Session:    session,
				State:      state,
				Summarized: summarized,
				Attempts:   attempts,
			}, nil
		}
	}

	return nil, ai.NewTurnError(ai.FailureBudget,
		fmt.Errorf("no excerpt subset fits the input budget after %d attempts", attempts))
}

func (p *Planner) canSummarize(req *Request) bool {
	return p.summarizer != nil && p.rebuilder != nil &&
		len(req.History) > p.cfg.MinHistoryForSummary
}

// validate measures prompt against the session's remaining capacity with the
// configured safety margin held back for streaming overhead.
func (p *Planner) validate(ctx context.Context, session ai.Session, prompt string) (*ai.BudgetValidation, error) {
	measured, err := session.MeasureInputTokens(ctx, prompt)
	if err != nil {
		return nil, err
	}
	remaining := session.InputQuota() - session.InputUsage()
	if remaining < 0 {
		remaining = 0
	}
	available := int(float64(remaining) * p.cfg.BudgetSafetyRatio)
	return &ai.BudgetValidation{
		Fits:            measured <= available,
		MeasuredTokens:  measured,
		AvailableTokens: available,
	}, nil
}

// RenderPrompt renders excerpts in document order into a citation-annotated
// block followed by the user question.
func RenderPrompt(excerpts []ai.ContextExcerpt, message string) string {
	var sb strings.Builder
	if len(excerpts) > 0 {
		ordered := append([]ai.ContextExcerpt(nil), excerpts...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].DocumentOrderIndex < ordered[j].DocumentOrderIndex
		})
		sb.WriteString("Excerpts from the paper:\n\n")
		for _, ex := range ordered {
			fmt.Fprintf(&sb, "[Section: %s > Paragraph %d]\n%s\n\n", ex.SectionPath, ex.ParagraphIndex, ex.Content)
		}
	}
	sb.WriteString("Question: ")
	sb.WriteString(message)
	return sb.String()
}

// TrimForRetry shrinks an excerpt set after a capacity error during
// generation, dropping tail excerpts with a floor of one. Used by the retry
// coordinator between capacity attempts.
func TrimForRetry(excerpts []ai.ContextExcerpt) []ai.ContextExcerpt {
	if len(excerpts) <= 1 {
		return excerpts
	}
	keep := len(excerpts) - excerptDropPerAttempt
	if keep < 1 {
		keep = 1
	}
	return append([]ai.ContextExcerpt(nil), excerpts[:keep]...)
}
