package services

import (
	"fmt"
	"strings"
	"time"

	"thrivecoach/internal/database"
	"thrivecoach/internal/models"
)

// ChatHistoryService handles append-only chat message persistence.
// Messages are read in bounded recent windows and bulk-deleted by the
// pruner once a memory summary supersedes them.
type ChatHistoryService struct {
	db *database.DB
}

// NewChatHistoryService creates a new chat history service
func NewChatHistoryService(db *database.DB) *ChatHistoryService {
	return &ChatHistoryService{db: db}
}

// Append stores one message half of a turn
func (s *ChatHistoryService) Append(userID int64, role, content, model string, tokenCount int) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (user_id, role, content, model, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, role, content, model, tokenCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent messages in chronological
// order (oldest first), ready for prompt or summarization input.
func (s *ChatHistoryService) Recent(userID int64, limit int) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, model, token_count, created_at
		FROM chat_messages
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Model, &m.TokenCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Count returns the total stored messages for a user
func (s *ChatHistoryService) Count(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// CountSubstantial returns how many of the user's messages are
// substantial: longer than 20 chars and not a bare acknowledgement.
// Cumulative across all time, matching the quality trigger's observed
// behavior.
func (s *ChatHistoryService) CountSubstantial(userID int64) (int, error) {
	messages, err := s.Recent(userID, 1000)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range messages {
		if m.Role == models.RoleUser && IsSubstantialMessage(m.Content) {
			count++
		}
	}
	return count, nil
}

// bare acknowledgements that never count as substantial
var acknowledgements = map[string]bool{
	"ok": true, "okay": true, "thanks": true, "thank you": true,
	"yes": true, "no": true, "sure": true, "got it": true, "k": true,
	"yep": true, "nope": true, "cool": true, "great": true,
}

// IsSubstantialMessage reports whether a message carries enough content
// to count toward the quality-based summarization trigger.
func IsSubstantialMessage(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= 20 {
		return false
	}
	return !acknowledgements[strings.ToLower(strings.TrimRight(trimmed, ".!"))]
}

// CutoffForKeep returns the created_at of the keepN-th most recent
// message; everything strictly older is prunable. sql.ErrNoRows means
// the user has fewer than keepN messages.
func (s *ChatHistoryService) CutoffForKeep(userID int64, keepN int) (time.Time, error) {
	var cutoff time.Time
	err := s.db.QueryRow(`
		SELECT created_at FROM chat_messages
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1 OFFSET ?
	`, userID, keepN-1).Scan(&cutoff)
	if err != nil {
		return time.Time{}, err
	}
	return cutoff, nil
}

// DeleteOlderThan bulk-deletes messages strictly older than the cutoff
func (s *ChatHistoryService) DeleteOlderThan(userID int64, cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM chat_messages WHERE user_id = ? AND created_at < ?
	`, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old messages: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

// GlobalStats returns aggregate message counts for the admin stats
// action. "Recent" means within the retention window.
func (s *ChatHistoryService) GlobalStats(retentionWindow time.Duration) (total, recent, old int, err error) {
	cutoff := time.Now().UTC().Add(-retentionWindow)

	if err = s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&total); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count total messages: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE created_at >= ?`, cutoff).Scan(&recent); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count recent messages: %w", err)
	}
	old = total - recent
	return total, recent, old, nil
}
