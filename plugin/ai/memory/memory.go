// Package memory maintains the rolling conversation summary that carries
// long-range context across session reconstructions.
package memory

import (
	"context"

	"github.com/paperlens/paperlens/plugin/ai"
)

// Summarizer condenses a span of messages into summary text. An empty result
// with a nil error means the collaborator declined to summarize.
type Summarizer interface {
	Summarize(ctx context.Context, messages []ai.Message, topic string) (string, error)
}

// StateStore persists conversation state across turns.
type StateStore interface {
	GetConversationState(ctx context.Context, threadID string) (*ai.ConversationState, error)
	SaveConversationState(ctx context.Context, threadID string, state *ai.ConversationState) error
}
