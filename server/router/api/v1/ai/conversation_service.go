package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/plugin/ai/session"
	"github.com/paperlens/paperlens/store"
)

// ConversationService manages conversation threads and their persisted
// message logs.
type ConversationService struct {
	store    *store.Store
	registry *session.Registry
}

// NewConversationService creates a conversation service.
func NewConversationService(st *store.Store, registry *session.Registry) *ConversationService {
	return &ConversationService{store: st, registry: registry}
}

// Create starts a new thread for a paper.
func (s *ConversationService) Create(ctx context.Context, paperUID, title string) (*store.Conversation, error) {
	now := time.Now().Unix()
	conv, err := s.store.CreateConversation(ctx, &store.Conversation{
		UID:       shortuuid.New(),
		PaperUID:  paperUID,
		Title:     title,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return conv, nil
}

// List returns threads, optionally scoped to a paper.
func (s *ConversationService) List(ctx context.Context, paperUID string) ([]*store.Conversation, error) {
	find := &store.FindConversation{}
	if paperUID != "" {
		find.PaperUID = &paperUID
	}
	return s.store.ListConversations(ctx, find)
}

// Messages returns a thread's full persisted log, structural entries
// included.
func (s *ConversationService) Messages(ctx context.Context, uid string) ([]*store.ChatMessage, error) {
	conv, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.Errorf("conversation %s not found", uid)
	}
	return s.store.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conv.ID})
}

// Delete removes a thread: its live session, message log, durable state, and
// the thread row itself.
func (s *ConversationService) Delete(ctx context.Context, uid string) error {
	conv, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}

	s.registry.Destroy(uid)
	if err := s.store.DeleteChatMessage(ctx, &store.DeleteChatMessage{ConversationID: &conv.ID}); err != nil {
		return err
	}
	if err := s.store.DeleteConversationState(ctx, uid); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID})
}

// InsertSeparator appends a context-reset marker to the log. The extension
// calls this when the user explicitly clears the working context.
func (s *ConversationService) InsertSeparator(ctx context.Context, uid string) error {
	conv, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.Errorf("conversation %s not found", uid)
	}
	_, err = s.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: conv.ID,
		Type:           store.MessageTypeSeparator,
		Role:           store.MessageRoleSystem,
		CreatedTs:      time.Now().Unix(),
	})
	return err
}

// Metrics returns the live session token accounting for a thread, nil when no
// session is live.
func (s *ConversationService) Metrics(uid string) *ai.SessionMetrics {
	metrics, ok := s.registry.Metrics(uid)
	if !ok {
		return nil
	}
	return &metrics
}

// ExportState returns the thread's durable state blob for diagnostics.
func (s *ConversationService) ExportState(ctx context.Context, uid string) (json.RawMessage, error) {
	record, err := s.store.GetConversationState(ctx, uid)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(record.Data), nil
}
