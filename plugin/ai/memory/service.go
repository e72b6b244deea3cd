package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperlens/paperlens/plugin/ai"
)

// Service implements the pre-summarization policy: when the estimated cost of
// the working memory approaches capacity, fold everything older than the
// recent window into the rolling summary.
type Service struct {
	cfg        *ai.Config
	summarizer Summarizer
	store      StateStore
	logger     *slog.Logger
}

// NewService creates a memory service.
func NewService(cfg *ai.Config, summarizer Summarizer, store StateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, summarizer: summarizer, store: store, logger: logger}
}

// PerformPreSummarization returns an updated state with older turns folded
// into the summary, or the input state unchanged when below the capacity
// threshold or when there is nothing new to fold in. The updated state is
// persisted before returning.
func (s *Service) PerformPreSummarization(ctx context.Context, threadID string, history []ai.Message, state *ai.ConversationState, topic string) (*ai.ConversationState, error) {
	if state == nil {
		state = ai.NewConversationState()
	}

	if !s.overThreshold(state) {
		return state, nil
	}

	start := state.LastSummarizedIndex + 1
	end := len(history) - s.cfg.RecentWindow
	if end <= start {
		return state, nil
	}

	span := history[start:end]
	condensed, err := s.summarizer.Summarize(ctx, span, topic)
	if err != nil {
		return nil, fmt.Errorf("summarize span [%d:%d): %w", start, end, err)
	}
	if condensed == "" {
		return state, nil
	}

	updated, err := s.merge(ctx, state, condensed, topic)
	if err != nil {
		return nil, err
	}
	updated.LastSummarizedIndex = end - 1
	updated.RecentMessages = ai.TailMessages(history, s.cfg.RecentWindow)

	if err := s.store.SaveConversationState(ctx, threadID, updated); err != nil {
		return nil, fmt.Errorf("save conversation state: %w", err)
	}

	s.logger.Info("conversation summarized",
		slog.String("thread_id", threadID),
		slog.Int("folded_messages", len(span)),
		slog.Int("last_summarized_index", updated.LastSummarizedIndex),
		slog.Int("summary_count", updated.SummaryCount))
	return updated, nil
}

// overThreshold estimates the token cost of the working memory against the
// capacity threshold.
func (s *Service) overThreshold(state *ai.ConversationState) bool {
	var sb strings.Builder
	sb.WriteString(state.Summary)
	for _, msg := range state.RecentMessages {
		sb.WriteString(msg.Content)
	}
	estimate := ai.EstimateTokens(sb.String())
	threshold := int(float64(s.cfg.ContextWindow) * s.cfg.CapacityThreshold)
	return estimate >= threshold
}

// merge applies the summary merge policy. Concatenation is allowed for a
// bounded number of cycles; past the limit the concatenation itself is
// re-summarized so summary length stays bounded regardless of conversation
// length.
func (s *Service) merge(ctx context.Context, state *ai.ConversationState, condensed, topic string) (*ai.ConversationState, error) {
	updated := state.Clone()
	switch {
	case updated.Summary == "":
		updated.Summary = condensed
		updated.SummaryCount = 1
	case updated.SummaryCount < s.cfg.SummaryMergeLimit:
		updated.Summary = updated.Summary + "\n\n" + condensed
		updated.SummaryCount++
	default:
		combined := updated.Summary + "\n\n" + condensed
		recompacted, err := s.summarizer.Summarize(ctx, []ai.Message{
			{Role: ai.RoleSystem, Content: combined},
		}, topic)
		if err != nil {
			return nil, fmt.Errorf("re-compact summary: %w", err)
		}
		if recompacted == "" {
			recompacted = combined
		}
		updated.Summary = recompacted
		updated.SummaryCount = 1
	}
	return updated, nil
}
