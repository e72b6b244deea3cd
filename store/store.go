// Package store provides database access to all raw objects.
package store

import (
	"context"

	"github.com/paperlens/paperlens/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{driver: driver, profile: profile}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the single conversation matching find, nil if none.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

func (s *Store) DeleteChatMessage(ctx context.Context, delete *DeleteChatMessage) error {
	return s.driver.DeleteChatMessage(ctx, delete)
}

func (s *Store) UpsertConversationState(ctx context.Context, upsert *ConversationStateRecord) error {
	return s.driver.UpsertConversationState(ctx, upsert)
}

func (s *Store) GetConversationState(ctx context.Context, conversationUID string) (*ConversationStateRecord, error) {
	return s.driver.GetConversationState(ctx, conversationUID)
}

func (s *Store) DeleteConversationState(ctx context.Context, conversationUID string) error {
	return s.driver.DeleteConversationState(ctx, conversationUID)
}

// DeleteExpiredConversationStates removes state rows last updated before the
// given unix timestamp and returns how many were removed.
func (s *Store) DeleteExpiredConversationStates(ctx context.Context, before int64) (int64, error) {
	return s.driver.DeleteExpiredConversationStates(ctx, before)
}

func (s *Store) CreatePaper(ctx context.Context, create *Paper) (*Paper, error) {
	return s.driver.CreatePaper(ctx, create)
}

func (s *Store) ListPapers(ctx context.Context, find *FindPaper) ([]*Paper, error) {
	return s.driver.ListPapers(ctx, find)
}

func (s *Store) GetPaper(ctx context.Context, find *FindPaper) (*Paper, error) {
	list, err := s.driver.ListPapers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdatePaper(ctx context.Context, update *UpdatePaper) (*Paper, error) {
	return s.driver.UpdatePaper(ctx, update)
}

func (s *Store) DeletePaper(ctx context.Context, delete *DeletePaper) error {
	return s.driver.DeletePaper(ctx, delete)
}
