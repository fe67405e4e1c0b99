package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"thrivecoach/internal/crypto"
	"thrivecoach/internal/database"
	"thrivecoach/internal/models"
)

// ProfileService handles user profile persistence. It owns the
// race-safe memory-summary upsert: the only shared mutable resource in
// the engine is each user's profile row, and every write to it goes
// through here.
type ProfileService struct {
	db         *database.DB
	encryption *crypto.EncryptionService // nil = summaries stored in plaintext
}

// NewProfileService creates a new profile service
func NewProfileService(db *database.DB, encryption *crypto.EncryptionService) *ProfileService {
	return &ProfileService{db: db, encryption: encryption}
}

const profileColumns = `id, email, name, age, locale, communication_style, response_format,
	goals, challenges, memory_summary, memory_updated_at, last_activity, last_message_time,
	token_balance, created_at, updated_at`

// GetByEmail fetches a profile by email. A missing row is a normal
// outcome, returned as (nil, nil).
func (s *ProfileService) GetByEmail(email string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM user_profiles WHERE email = ?`, email)
	profile, err := s.scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return profile, err
}

// GetByID fetches a profile by ID, (nil, nil) when absent
func (s *ProfileService) GetByID(userID int64) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM user_profiles WHERE id = ?`, userID)
	profile, err := s.scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return profile, err
}

// GetOrCreateByEmail fetches a profile, creating a minimal one lazily
// on the first chat interaction. A create that loses a concurrent race
// re-reads the winner's row.
func (s *ProfileService) GetOrCreateByEmail(email string, initialTokens int64) (*models.UserProfile, error) {
	profile, err := s.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO user_profiles (email, goals, challenges, memory_summary, token_balance, created_at, updated_at)
		VALUES (?, '[]', '[]', '', ?, ?, ?)
	`, email, initialTokens, now, now)
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			// Concurrent first message for the same user; take theirs
			return s.GetByEmail(email)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	log.Printf("✨ [PROFILE] Created profile for %s", email)
	return s.GetByEmail(email)
}

// UpsertMemorySummary persists a summary with existence-checked upsert
// semantics: check for a prior row, UPDATE if present, INSERT if
// absent, and on a uniqueness-constraint race during INSERT retry as
// UPDATE. Centralizing this here keeps the race-handling policy in one
// place instead of inline branching at call sites.
func (s *ProfileService) UpsertMemorySummary(userID int64, email, summary string) error {
	stored, err := s.encryptSummary(userID, summary)
	if err != nil {
		return fmt.Errorf("failed to encrypt summary: %w", err)
	}

	now := time.Now().UTC()

	var exists bool
	err = s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM user_profiles WHERE id = ?)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check profile existence: %w", err)
	}

	if exists {
		return s.updateSummary(userID, stored, now)
	}

	_, err = s.db.Exec(`
		INSERT INTO user_profiles (id, email, goals, challenges, memory_summary, memory_updated_at, created_at, updated_at)
		VALUES (?, ?, '[]', '[]', ?, ?, ?, ?)
	`, userID, email, stored, now, now, now)
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			// Lost the insert race to a concurrent summarization
			log.Printf("🔁 [PROFILE] Summary insert race for user %d, retrying as update", userID)
			return s.updateSummary(userID, stored, now)
		}
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

func (s *ProfileService) updateSummary(userID int64, stored string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE user_profiles SET memory_summary = ?, memory_updated_at = ?, updated_at = ? WHERE id = ?
	`, stored, now, now, userID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

// TouchActivity updates last_activity (and optionally the first-message
// time of the current window). Best-effort: callers log and continue on
// error, they never fail the enclosing request over this.
func (s *ProfileService) TouchActivity(userID int64, messageTime time.Time) error {
	_, err := s.db.Exec(`
		UPDATE user_profiles SET last_activity = ?, last_message_time = ?, updated_at = ? WHERE id = ?
	`, messageTime, messageTime, time.Now().UTC(), userID)
	return err
}

// DebitTokens decreases the user's balance after a completed turn
func (s *ProfileService) DebitTokens(userID int64, amount int) (int64, error) {
	_, err := s.db.Exec(`UPDATE user_profiles SET token_balance = token_balance - ? WHERE id = ?`, amount, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to debit tokens: %w", err)
	}

	var balance int64
	if err := s.db.QueryRow(`SELECT token_balance FROM user_profiles WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// ListUsersWithMemory returns user IDs whose summary passes the
// has-memory threshold, oldest summary first, capped at limit. Drives
// the bulk pruner. The length check runs after decryption: ciphertext
// length says nothing about the plaintext.
func (s *ProfileService) ListUsersWithMemory(minChars, limit int) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT id, memory_summary FROM user_profiles
		WHERE memory_summary != ''
		ORDER BY memory_updated_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with memory: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return nil, err
		}
		summary, err := s.decryptSummary(id, stored)
		if err != nil {
			log.Printf("⚠️ [PROFILE] Failed to decrypt summary for user %d: %v (skipping)", id, err)
			continue
		}
		if len(summary) < minChars {
			continue
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, rows.Err()
}

// CountUsersByMemory returns (withMemory, withoutMemory) user counts,
// measured against the decrypted summary
func (s *ProfileService) CountUsersByMemory(minChars int) (int, int, error) {
	rows, err := s.db.Query(`SELECT id, memory_summary FROM user_profiles`)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var with, total int
	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, 0, err
		}
		total++
		summary, err := s.decryptSummary(id, stored)
		if err != nil {
			continue // undecryptable reads as no memory
		}
		if len(summary) >= minChars {
			with++
		}
	}
	return with, total - with, rows.Err()
}

// ListIdleUsers returns users whose last_activity is older than the
// cutoff but whose conversation window spans at least minSpan. Feeds
// session-end summarization.
func (s *ProfileService) ListIdleUsers(idleSince time.Time, limit int) ([]*models.UserProfile, error) {
	rows, err := s.db.Query(`
		SELECT `+profileColumns+` FROM user_profiles
		WHERE last_activity IS NOT NULL AND last_activity < ?
		ORDER BY last_activity ASC
		LIMIT ?
	`, idleSince, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle users: %w", err)
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		profile, err := s.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// scanner lets scanProfile work over both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *ProfileService) scanProfile(row scanner) (*models.UserProfile, error) {
	var p models.UserProfile
	var goalsJSON, challengesJSON, storedSummary string
	var memoryUpdatedAt, lastActivity, lastMessageTime sql.NullTime

	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.Age, &p.Locale, &p.CommunicationStyle, &p.ResponseFormat,
		&goalsJSON, &challengesJSON, &storedSummary, &memoryUpdatedAt, &lastActivity, &lastMessageTime,
		&p.TokenBalance, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if goalsJSON != "" {
		if err := json.Unmarshal([]byte(goalsJSON), &p.Goals); err != nil {
			log.Printf("⚠️ [PROFILE] Malformed goals JSON for user %d: %v", p.ID, err)
		}
	}
	if challengesJSON != "" {
		if err := json.Unmarshal([]byte(challengesJSON), &p.Challenges); err != nil {
			log.Printf("⚠️ [PROFILE] Malformed challenges JSON for user %d: %v", p.ID, err)
		}
	}

	summary, err := s.decryptSummary(p.ID, storedSummary)
	if err != nil {
		// A corrupted ciphertext must not take down the turn; the
		// summarizer's bootstrap trigger rebuilds from history
		log.Printf("⚠️ [PROFILE] Failed to decrypt summary for user %d: %v (treating as empty)", p.ID, err)
		summary = ""
	}
	p.MemorySummary = summary

	if memoryUpdatedAt.Valid {
		p.MemoryUpdatedAt = &memoryUpdatedAt.Time
	}
	if lastActivity.Valid {
		p.LastActivity = &lastActivity.Time
	}
	if lastMessageTime.Valid {
		p.LastMessageTime = &lastMessageTime.Time
	}

	return &p, nil
}

func (s *ProfileService) encryptSummary(userID int64, summary string) (string, error) {
	if s.encryption == nil || summary == "" {
		return summary, nil
	}
	return s.encryption.Encrypt(strconv.FormatInt(userID, 10), []byte(summary))
}

func (s *ProfileService) decryptSummary(userID int64, stored string) (string, error) {
	if s.encryption == nil || stored == "" {
		return stored, nil
	}
	plaintext, err := s.encryption.Decrypt(strconv.FormatInt(userID, 10), stored)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
