package models

// ChatTurnRequest is one inbound user message
type ChatTurnRequest struct {
	Email          string `json:"email"`
	Message        string `json:"message"`
	IsFirstMessage bool   `json:"isFirstMessage,omitempty"`
}

// ChatTurnResponse is the reply to a chat or continuation turn
type ChatTurnResponse struct {
	Response        string         `json:"response"`
	TokensUsed      int            `json:"tokensUsed"`
	RemainingTokens int64          `json:"remainingTokens"`
	TokenBreakdown  TokenBreakdown `json:"tokenBreakdown"`
	IsPartial       bool           `json:"isPartial"`
	TotalChunks     int            `json:"totalChunks"`
	CurrentChunk    int            `json:"currentChunk"`
	ConversationID  string         `json:"conversationId,omitempty"`
	NextChunkToken  string         `json:"nextChunkToken,omitempty"`
	PreviewNext     string         `json:"previewNext,omitempty"`
}

// ContinueRequest asks for the next chunk of a partial response
type ContinueRequest struct {
	ConversationID string `json:"conversationId"`
	ChunkNumber    int    `json:"chunkNumber"`
	Email          string `json:"email"`
}

// TokenShortfallError is the 403-shaped body returned when the user's
// balance cannot cover even the minimum-viable turn
type TokenShortfallError struct {
	Error     string `json:"error"`
	Required  int    `json:"required"`
	Available int64  `json:"available"`
}

// AdminCleanupRequest drives the administrative cleanup endpoint
type AdminCleanupRequest struct {
	Action       string `json:"action"` // stats | cleanup_user | bulk_cleanup
	UserID       int64  `json:"user_id,omitempty"`
	KeepMessages int    `json:"keep_messages,omitempty"`
	MaxUsers     int    `json:"max_users,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

// CleanupResult reports a single user's pruning outcome
type CleanupResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Deleted int    `json:"deleted"`
	Kept    int    `json:"kept"`
}

// BulkCleanupResult aggregates per-user outcomes for the bulk pruner
type BulkCleanupResult struct {
	UsersProcessed int                `json:"users_processed"`
	TotalDeleted   int                `json:"total_deleted"`
	TotalKept      int                `json:"total_kept"`
	Errors         []BulkCleanupError `json:"errors,omitempty"`
}

// BulkCleanupError is one user's failure inside a bulk run; a single
// user's failure never aborts the whole batch
type BulkCleanupError struct {
	UserID int64  `json:"user_id"`
	Error  string `json:"error"`
}

// CleanupStats are the aggregate counts returned by the stats action
type CleanupStats struct {
	TotalMessages      int `json:"total_messages"`
	UsersWithMemory    int `json:"users_with_memory"`
	UsersWithoutMemory int `json:"users_without_memory"`
	RecentMessages     int `json:"recent_messages"`
	OldMessages        int `json:"old_messages"`
	CleanupOpportunity int `json:"cleanup_opportunity"`
}
