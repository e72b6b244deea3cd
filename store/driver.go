package store

import "context"

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() any
	Close() error
	Migrate(ctx context.Context) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	DeleteChatMessage(ctx context.Context, delete *DeleteChatMessage) error

	UpsertConversationState(ctx context.Context, upsert *ConversationStateRecord) error
	GetConversationState(ctx context.Context, conversationUID string) (*ConversationStateRecord, error)
	DeleteConversationState(ctx context.Context, conversationUID string) error
	DeleteExpiredConversationStates(ctx context.Context, before int64) (int64, error)

	CreatePaper(ctx context.Context, create *Paper) (*Paper, error)
	ListPapers(ctx context.Context, find *FindPaper) ([]*Paper, error)
	UpdatePaper(ctx context.Context, update *UpdatePaper) (*Paper, error)
	DeletePaper(ctx context.Context, delete *DeletePaper) error
}
