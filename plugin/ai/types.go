// Package ai provides the model runtime abstraction and the shared data model
// for the context-budgeted conversational inference engine.
package ai

import "time"

// Role identifies the author of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// SourceRef points at the paper location an answer fragment was grounded on.
type SourceRef struct {
	PaperID     string `json:"paper_id,omitempty"`
	Title       string `json:"title,omitempty"`
	SectionPath string `json:"section_path,omitempty"`
}

// Message represents a conversation message. Immutable once appended to a
// thread's history.
type Message struct {
	Role       string      `json:"role"` // "user" | "assistant" | "system"
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Sources    []string    `json:"sources,omitempty"`
	SourceInfo []SourceRef `json:"source_info,omitempty"`
}

// ConversationState is the durable carrier of conversational memory across
// session reconstructions. The session handle is disposable; this is not.
type ConversationState struct {
	// Summary is the rolling summary of turns already folded in, empty if none.
	Summary string `json:"summary,omitempty"`
	// RecentMessages is always the tail (at most RecentWindow entries) of the
	// full history at the time of last update.
	RecentMessages []Message `json:"recent_messages"`
	// LastSummarizedIndex is the index into the full history of the last
	// message already folded into Summary. Monotonic non-decreasing; -1 when
	// nothing has been summarized.
	LastSummarizedIndex int `json:"last_summarized_index"`
	// SummaryCount is the number of summary-merge cycles since the last
	// re-compaction.
	SummaryCount int `json:"summary_count"`
}

// NewConversationState returns an empty state for a fresh thread.
func NewConversationState() *ConversationState {
	return &ConversationState{
		RecentMessages:      []Message{},
		LastSummarizedIndex: -1,
	}
}

// Clone returns a deep copy safe for read-modify-write cycles.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return NewConversationState()
	}
	copied := *s
	copied.RecentMessages = append([]Message(nil), s.RecentMessages...)
	return &copied
}

// ContextExcerpt is a retrieved fragment of a paper with positional and
// hierarchical section metadata.
type ContextExcerpt struct {
	Content string `json:"content"`
	// SectionPath is the hierarchical heading trail, e.g. "Methods > Training".
	SectionPath string `json:"section_path"`
	// DocumentOrderIndex orders excerpts by their position in the source
	// document, independent of retrieval rank.
	DocumentOrderIndex int `json:"document_order_index"`
	ParagraphIndex     int `json:"paragraph_index,omitempty"`
	SentenceGroupIndex int `json:"sentence_group_index,omitempty"`
}

// SessionMetrics is a derived snapshot of a session's token accounting.
// Never persisted.
type SessionMetrics struct {
	InputUsage int     `json:"input_usage"`
	InputQuota int     `json:"input_quota"`
	UsageRatio float64 `json:"usage_ratio"`
}

// BudgetValidation is the ephemeral result of one prompt measurement.
type BudgetValidation struct {
	Fits            bool `json:"fits"`
	MeasuredTokens  int  `json:"measured_tokens"`
	AvailableTokens int  `json:"available_tokens"`
}

// TailMessages returns the last n messages of history.
func TailMessages(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return []Message{}
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return append([]Message(nil), history...)
}

// EstimateTokens gives a rough token estimation, approximately 4 characters
// per token. A tokenizer would be more accurate, but the budget planner always
// re-measures through the runtime before trusting an estimate.
func EstimateTokens(text string) int {
	return len(text) / 4
}
