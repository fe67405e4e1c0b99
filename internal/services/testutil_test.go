package services

import (
	"testing"
	"time"

	"thrivecoach/internal/config"
	"thrivecoach/internal/database"
)

// newTestDB returns an initialized in-memory SQLite database
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize test schema: %v", err)
	}
	return db
}

// testConfig returns the default tunables used across service tests
func testConfig() *config.Config {
	return &config.Config{
		TopicShiftThreshold:    0.3,
		PeriodicTriggerEvery:   6,
		QualityTriggerEvery:    4,
		SummaryStaleAfter:      24 * time.Hour,
		SessionTimeout:         30 * time.Minute,
		MinConversationSpan:    10 * time.Minute,
		HasMemoryMinChars:      50,
		CacheTTL:               10 * time.Minute,
		CacheSweepThreshold:    1000,
		MaxResponseTokens:      375,
		PruneKeepMessages:      10,
		BulkCleanupUsersPerSec: 1000, // tests should not wait on pacing
	}
}

// insertMessage writes a chat message with an explicit timestamp so
// ordering-sensitive tests control created_at precisely
func insertMessage(t *testing.T, db *database.DB, userID int64, role, content string, createdAt time.Time) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO chat_messages (user_id, role, content, model, token_count, created_at)
		VALUES (?, ?, ?, '', 0, ?)
	`, userID, role, content, createdAt)
	if err != nil {
		t.Fatalf("failed to insert test message: %v", err)
	}
}
