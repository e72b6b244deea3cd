package store

// RowStatus is the status of a row.
type RowStatus string

const (
	Normal   RowStatus = "NORMAL"
	Archived RowStatus = "ARCHIVED"
)

// Conversation is one question-answer thread bound to a paper.
type Conversation struct {
	ID        int32
	UID       string
	PaperUID  string
	Title     string
	Pinned    bool
	RowStatus RowStatus
	CreatedTs int64
	UpdatedTs int64
}

type FindConversation struct {
	ID        *int32
	UID       *string
	PaperUID  *string
	Pinned    *bool
	RowStatus *RowStatus
}

type UpdateConversation struct {
	ID        int32
	Title     *string
	Pinned    *bool
	RowStatus *RowStatus
	UpdatedTs *int64
}

type DeleteConversation struct {
	ID int32
}
