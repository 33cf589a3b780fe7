package vectorstore

// Document is an indexed enriched chunk (§3.5): an EnrichedChunk plus its
// optional text and image embedding vectors. Stored with id = chunk id.
type Document struct {
	ID string

	// Text is the formatted chunk text ("[sender HH:MM] text" per line).
	Text string

	ChatID        string
	ChatName      string
	IsGroupChat   bool
	IsDM          bool
	Sender        string
	SenderIsMe    bool
	Participants  []string
	ParticipantCount int

	StartTimestamp int64 // Unix seconds
	EndTimestamp   int64

	Year        int
	Month       int // 1..12
	DayOfWeek   string
	HourOfDay   int // 0..23

	HasAttachment bool
	HasImage      bool

	MessageRowIDs []int64

	// TextEmbedding and ImageEmbedding are nullable dense vectors, D_T and
	// D_I dimensional respectively. Search results never return these.
	TextEmbedding  []float32
	ImageEmbedding []float32
}

// SearchResult is a ranked hit: the document (without vectors) and its
// combined hybrid score.
type SearchResult struct {
	ID       string
	Score    float64
	Document Document
}
