package models

import "time"

// GoalItem is a structured goal or challenge on a user profile
type GoalItem struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// UserProfile holds the per-user state the engine reads and mutates.
// One row per user, created lazily on the first chat interaction.
type UserProfile struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Age                int        `json:"age"`
	Locale             string     `json:"locale"`
	CommunicationStyle string     `json:"communication_style"`
	ResponseFormat     string     `json:"response_format"`
	Goals              []GoalItem `json:"goals"`
	Challenges         []GoalItem `json:"challenges"`
	MemorySummary      string     `json:"memory_summary"`
	MemoryUpdatedAt    *time.Time `json:"memory_updated_at,omitempty"`
	LastActivity       *time.Time `json:"last_activity,omitempty"`
	LastMessageTime    *time.Time `json:"last_message_time,omitempty"`
	TokenBalance       int64      `json:"token_balance"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasMemory reports whether the stored summary is substantial enough to
// stand in for full chat history. Short fragments (below minChars) do
// not count; the pruner refuses to delete history behind them.
func (p *UserProfile) HasMemory(minChars int) bool {
	return len(p.MemorySummary) >= minChars
}
