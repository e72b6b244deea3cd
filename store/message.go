package store

// MessageRole identifies the author of a persisted chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
	MessageRoleSystem    MessageRole = "SYSTEM"
)

// MessageType distinguishes regular turns from structural markers.
// SEPARATOR marks a context reset, SUMMARY holds a compacted summary entry.
type MessageType string

const (
	MessageTypeMessage   MessageType = "MESSAGE"
	MessageTypeSeparator MessageType = "SEPARATOR"
	MessageTypeSummary   MessageType = "SUMMARY"
)

// ChatMessage is one persisted conversation entry.
type ChatMessage struct {
	ID             int32
	UID            string
	ConversationID int32
	Type           MessageType
	Role           MessageRole
	Content        string
	Metadata       string // JSON string, sources and source info
	CreatedTs      int64
}

type FindChatMessage struct {
	ID             *int32
	UID            *string
	ConversationID *int32
	Type           *MessageType
}

type DeleteChatMessage struct {
	ID             *int32
	ConversationID *int32
}
