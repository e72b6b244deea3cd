package store

// Paper is a registered academic paper the assistant can answer about.
type Paper struct {
	ID       int32
	UID      string
	Title    string
	URL      string
	Authors  string
	Abstract string
	// Payload is an opaque JSON blob owned by the retrieval layer, carrying
	// the paper's excerpt corpus so it survives daemon restarts.
	Payload   string
	CreatedTs int64
}

type FindPaper struct {
	ID  *int32
	UID *string
	URL *string
}

type UpdatePaper struct {
	ID      int32
	Payload *string
}

type DeletePaper struct {
	ID int32
}
