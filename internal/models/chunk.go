package models

import "time"

// ChatChunkRecord stores an oversized model response split into
// sentence-aligned chunks, delivered incrementally via the continuation
// protocol. Once current_chunk reaches len(chunks) the record is inert:
// kept for audit, never advanced again.
type ChatChunkRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	FullResponse   string    `json:"full_response"`
	Chunks         []string  `json:"chunks"`
	CurrentChunk   int       `json:"current_chunk"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
