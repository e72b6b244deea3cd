package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/memory"
	"github.com/paperlens/paperlens/plugin/ai/recovery"
	"github.com/paperlens/paperlens/plugin/ai/session"
	"github.com/paperlens/paperlens/server/internal/observability"
	"github.com/paperlens/paperlens/server/retrieval"
	"github.com/paperlens/paperlens/store"
)

// answerSchema constrains generation to the streamable answer object.
var answerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"answer": {"type": "string"},
		"sources": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["answer", "sources"]
}`)

// messageMetadata is the JSON stored alongside an assistant message.
type messageMetadata struct {
	Sources    []string       `json:"sources,omitempty"`
	SourceInfo []ai.SourceRef `json:"source_info,omitempty"`
}

// ChatService is the turn controller: it sequences budget planning, session
// acquisition, streamed generation, decoding, persistence, and summarization
// for each user message.
type ChatService struct {
	cfg         *ai.Config
	store       *store.Store
	registry    *session.Registry
	coordinator *recovery.Coordinator
	states      memory.StateStore
	memory      *memory.Service
	retriever   retrieval.Provider
	logger      *slog.Logger
}

// NewChatService creates the turn controller.
func NewChatService(
	cfg *ai.Config,
	st *store.Store,
	registry *session.Registry,
	coordinator *recovery.Coordinator,
	states memory.StateStore,
	memorySvc *memory.Service,
	retriever retrieval.Provider,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		cfg:         cfg,
		store:       st,
		registry:    registry,
		coordinator: coordinator,
		states:      states,
		memory:      memorySvc,
		retriever:   retriever,
		logger:      logger,
	}
}

// ProcessTurn performs the full pipeline for one user message and emits
// incremental deltas plus one completion event through the emitter. History
// is appended only after the turn fully resolves, never speculatively.
func (s *ChatService) ProcessTurn(ctx context.Context, conversationUID, question string, excerpts []ai.ContextExcerpt, emitter TurnEmitter) error {
	reqCtx := observability.NewRequestContext(s.logger, conversationUID)
	reqCtx.Info("turn started", slog.Int(observability.LogFieldMessageLen, len(question)))

	conv, err := s.ensureConversation(ctx, conversationUID, question)
	if err != nil {
		emitter.EmitTurnError(ai.NewTurnError(ai.FailureFatal, err).UserMessage())
		return err
	}

	history, err := s.loadHistory(ctx, conv.ID)
	if err != nil {
		emitter.EmitTurnError(ai.NewTurnError(ai.FailureFatal, err).UserMessage())
		return err
	}

	state, err := s.states.GetConversationState(ctx, conversationUID)
	if err != nil {
		emitter.EmitTurnError(ai.NewTurnError(ai.FailureFatal, err).UserMessage())
		return err
	}

	if len(excerpts) == 0 && s.retriever != nil && conv.PaperUID != "" {
		retrieved, rerr := s.retriever.GetRelevantExcerpts(ctx, conv.PaperUID, question, s.cfg.RetrievalLimit)
		if rerr != nil {
			reqCtx.Warn("fallback retrieval failed", slog.String("error", rerr.Error()))
		} else {
			excerpts = retrieved
		}
	}

	sessionOpts := ai.SessionOptions{Temperature: s.cfg.Temperature, TopK: s.cfg.TopK}
	seeded := session.SeedOptions(state, s.cfg.SystemPrompt, s.cfg.RecentWindow, sessionOpts)
	sess, err := s.registry.CreateOrReuse(ctx, conversationUID, seeded)
	if err != nil {
		emitter.EmitTurnError(ai.NewTurnError(ai.FailureFatal, err).UserMessage())
		return err
	}

	result, err := s.coordinator.ExecuteTurn(ctx, &recovery.TurnRequest{
		ThreadID:       conversationUID,
		Session:        sess,
		Excerpts:       excerpts,
		Message:        question,
		History:        history,
		State:          state,
		SystemPrompt:   s.cfg.SystemPrompt,
		SessionOptions: sessionOpts,
		Topic:          conv.Title,
		Schema:         answerSchema,
		EmitDelta:      emitter.EmitDelta,
		TargetAlive:    emitter.TargetAlive,
	})
	if err != nil {
		classified := ai.Classify(err)
		if classified.Kind == ai.FailureStaleTarget {
			// The page is gone; nobody is listening. No error event, no
			// history mutation.
			reqCtx.Info("turn aborted, target gone",
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
			return nil
		}
		reqCtx.Error("turn failed", classified,
			slog.String("kind", classified.Kind.String()),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		emitter.EmitTurnError(classified.UserMessage())
		return classified
	}

	if err := s.persistTurn(ctx, conv, question, result); err != nil {
		// The answer already streamed; report persistence trouble without
		// retracting it.
		reqCtx.Error("failed to persist turn", err)
	}
	s.maintainState(ctx, reqCtx, conv, question, history, result)

	emitter.EmitTurnComplete(result.Answer, result.Sources)
	reqCtx.Info("turn completed",
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		slog.Int("answer_length", len(result.Answer)),
		slog.Bool("summarized", result.Summarized))
	return nil
}

// ensureConversation loads the conversation, creating it on first contact.
func (s *ChatService) ensureConversation(ctx context.Context, uid, question string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now().Unix()
	conv, err = s.store.CreateConversation(ctx, &store.Conversation{
		UID:       uid,
		Title:     deriveTitle(question),
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return conv, nil
}

// loadHistory reconstructs the in-memory history from persisted turns.
// Structural entries (separators, summaries) are not part of the replayable
// history.
func (s *ChatService) loadHistory(ctx context.Context, conversationID int32) ([]ai.Message, error) {
	msgType := store.MessageTypeMessage
	rows, err := s.store.ListChatMessages(ctx, &store.FindChatMessage{
		ConversationID: &conversationID,
		Type:           &msgType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}

	history := make([]ai.Message, 0, len(rows))
	for _, row := range rows {
		msg := ai.Message{
			Role:      roleFromStore(row.Role),
			Content:   row.Content,
			Timestamp: time.Unix(row.CreatedTs, 0),
		}
		if row.Metadata != "" && row.Metadata != "{}" {
			var meta messageMetadata
			if err := json.Unmarshal([]byte(row.Metadata), &meta); err == nil {
				msg.Sources = meta.Sources
				msg.SourceInfo = meta.SourceInfo
			}
		}
		history = append(history, msg)
	}
	return history, nil
}

// persistTurn appends the resolved turn to the durable message log.
func (s *ChatService) persistTurn(ctx context.Context, conv *store.Conversation, question string, result *recovery.TurnResult) error {
	now := time.Now().Unix()

	if _, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: conv.ID,
		Type:           store.MessageTypeMessage,
		Role:           store.MessageRoleUser,
		Content:        question,
		CreatedTs:      now,
	}); err != nil {
		return errors.Wrap(err, "persist user message")
	}

	metadata := "{}"
	if len(result.Sources) > 0 {
		if data, err := json.Marshal(messageMetadata{Sources: result.Sources}); err == nil {
			metadata = string(data)
		}
	}
	if _, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: conv.ID,
		Type:           store.MessageTypeMessage,
		Role:           store.MessageRoleAssistant,
		Content:        result.Answer,
		Metadata:       metadata,
		CreatedTs:      now,
	}); err != nil {
		return errors.Wrap(err, "persist assistant message")
	}

	if result.Summarized && result.State != nil && result.State.Summary != "" {
		if _, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
			UID:            shortuuid.New(),
			ConversationID: conv.ID,
			Type:           store.MessageTypeSummary,
			Role:           store.MessageRoleSystem,
			Content:        result.State.Summary,
			CreatedTs:      now,
		}); err != nil {
			return errors.Wrap(err, "persist summary marker")
		}
	}

	if _, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conv.ID,
		UpdatedTs: &now,
	}); err != nil {
		return errors.Wrap(err, "touch conversation")
	}
	return nil
}

// maintainState refreshes the durable conversation state after a resolved
// turn. The recent window always tracks the tail of the history including the
// turn that just finished; once working memory approaches capacity, older
// turns are folded into the rolling summary. State trouble is logged but never
// fails the turn, the answer already reached the user.
func (s *ChatService) maintainState(ctx context.Context, reqCtx *observability.RequestContext, conv *store.Conversation, question string, history []ai.Message, result *recovery.TurnResult) {
	now := time.Now()
	history = append(history,
		ai.Message{Role: ai.RoleUser, Content: question, Timestamp: now},
		ai.Message{Role: ai.RoleAssistant, Content: result.Answer, Sources: result.Sources, Timestamp: now},
	)

	state := result.State
	if state == nil {
		state = ai.NewConversationState()
	}
	updated := state.Clone()
	updated.RecentMessages = ai.TailMessages(history, s.cfg.RecentWindow)
	if err := s.states.SaveConversationState(ctx, conv.UID, updated); err != nil {
		reqCtx.Error("failed to save conversation state", err)
		return
	}

	if s.memory == nil {
		return
	}
	folded, err := s.memory.PerformPreSummarization(ctx, conv.UID, history, updated, conv.Title)
	if err != nil {
		reqCtx.Warn("post-turn summarization failed", slog.String("error", err.Error()))
		return
	}
	if folded.LastSummarizedIndex == updated.LastSummarizedIndex {
		return
	}
	reqCtx.Info("history folded into summary",
		slog.Int("last_summarized_index", folded.LastSummarizedIndex),
		slog.Int("summary_count", folded.SummaryCount))
	if _, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: conv.ID,
		Type:           store.MessageTypeSummary,
		Role:           store.MessageRoleSystem,
		Content:        folded.Summary,
		CreatedTs:      now.Unix(),
	}); err != nil {
		reqCtx.Error("failed to persist summary marker", err)
	}
}

func roleFromStore(role store.MessageRole) string {
	switch role {
	case store.MessageRoleAssistant:
		return ai.RoleAssistant
	case store.MessageRoleSystem:
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}

func deriveTitle(question string) string {
	const maxTitle = 80
	if len(question) <= maxTitle {
		return question
	}
	return question[:maxTitle]
}
