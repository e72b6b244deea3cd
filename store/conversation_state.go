package store

// ConversationStateRecord is the durable carrier of a thread's rolling summary
// and recent-window snapshot. Data is an opaque JSON blob owned by the memory
// layer; the store does not interpret it.
type ConversationStateRecord struct {
	ConversationUID string
	Data            []byte
	UpdatedTs       int64
}
