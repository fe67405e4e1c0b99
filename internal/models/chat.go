package models

import "time"

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one stored chat turn half, append-only per user
type ChatMessage struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Model      string    `json:"model,omitempty"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// PromptMessage is a role/content pair sent to the completion service
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenBreakdown provides a detailed token usage breakdown per turn
type TokenBreakdown struct {
	SystemTokens  int `json:"system_tokens"`
	ContextTokens int `json:"context_tokens"`
	HistoryTokens int `json:"history_tokens"`
	MessageTokens int `json:"message_tokens"`
	OutputTokens  int `json:"output_tokens"`
	Total         int `json:"total"`
}
