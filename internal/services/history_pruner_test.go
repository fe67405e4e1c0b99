package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"thrivecoach/internal/models"
)

func newPrunerFixture(t *testing.T) (*HistoryPruner, *ProfileService, *ChatHistoryService) {
	t.Helper()
	db := newTestDB(t)
	profiles := NewProfileService(db, nil)
	history := NewChatHistoryService(db)
	return NewHistoryPruner(profiles, history, testConfig()), profiles, history
}

func seedMessages(t *testing.T, history *ChatHistoryService, userID int64, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		insertMessage(t, history.db, userID, models.RoleUser, "message", base.Add(time.Duration(i)*time.Minute))
	}
}

func TestCleanupUserRefusesWithoutMemory(t *testing.T) {
	pruner, profiles, history := newPrunerFixture(t)

	profile, err := profiles.GetOrCreateByEmail("dana@example.com", 1000)
	if err != nil {
		t.Fatalf("GetOrCreateByEmail failed: %v", err)
	}
	seedMessages(t, history, profile.ID, 20)

	result := pruner.CleanupUser(profile.ID, 5, false)
	if result.Success {
		t.Fatal("expected refusal without a memory summary")
	}
	if !strings.Contains(result.Reason, "no memory summary") {
		t.Errorf("reason = %q", result.Reason)
	}

	count, _ := history.Count(profile.ID)
	if count != 20 {
		t.Errorf("history was touched: %d messages remain", count)
	}
}

func TestCleanupUserForceOverridesRefusal(t *testing.T) {
	pruner, profiles, history := newPrunerFixture(t)

	profile, _ := profiles.GetOrCreateByEmail("dana@example.com", 1000)
	seedMessages(t, history, profile.ID, 20)

	result := pruner.CleanupUser(profile.ID, 5, true)
	if !result.Success {
		t.Fatalf("forced cleanup refused: %s", result.Reason)
	}
	if result.Deleted != 15 || result.Kept != 5 {
		t.Errorf("deleted %d kept %d, want 15/5", result.Deleted, result.Kept)
	}
}

func TestCleanupUserWithMemory(t *testing.T) {
	pruner, profiles, history := newPrunerFixture(t)

	profile, _ := profiles.GetOrCreateByEmail("dana@example.com", 1000)
	summary := strings.Repeat("They are making steady progress on their goals. ", 3)
	if err := profiles.UpsertMemorySummary(profile.ID, profile.Email, summary); err != nil {
		t.Fatalf("UpsertMemorySummary failed: %v", err)
	}
	seedMessages(t, history, profile.ID, 20)

	result := pruner.CleanupUser(profile.ID, 10, false)
	if !result.Success {
		t.Fatalf("cleanup refused: %s", result.Reason)
	}
	if result.Deleted != 10 || result.Kept != 10 {
		t.Errorf("deleted %d kept %d, want 10/10", result.Deleted, result.Kept)
	}

	// Idempotent once within the keep window
	again := pruner.CleanupUser(profile.ID, 10, false)
	if !again.Success || again.Deleted != 0 {
		t.Errorf("second run = %+v, want no-op", again)
	}
}

func TestCleanupUnknownUser(t *testing.T) {
	pruner, _, _ := newPrunerFixture(t)

	result := pruner.CleanupUser(999, 5, false)
	if result.Success {
		t.Error("expected failure for unknown user")
	}
}

func TestBulkCleanup(t *testing.T) {
	pruner, profiles, history := newPrunerFixture(t)

	summary := strings.Repeat("Long-standing goals and progress notes for this user. ", 2)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		p, _ := profiles.GetOrCreateByEmail(email, 1000)
		if err := profiles.UpsertMemorySummary(p.ID, p.Email, summary); err != nil {
			t.Fatalf("UpsertMemorySummary failed: %v", err)
		}
		seedMessages(t, history, p.ID, 15)
	}
	// A user without memory must be skipped by the listing, not errored
	noMem, _ := profiles.GetOrCreateByEmail("c@example.com", 1000)
	seedMessages(t, history, noMem.ID, 15)

	result, err := pruner.BulkCleanup(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("BulkCleanup failed: %v", err)
	}
	if result.UsersProcessed != 2 {
		t.Errorf("UsersProcessed = %d, want 2", result.UsersProcessed)
	}
	if result.TotalDeleted != 10 {
		t.Errorf("TotalDeleted = %d, want 10", result.TotalDeleted)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}

	count, _ := history.Count(noMem.ID)
	if count != 15 {
		t.Errorf("memoryless user was pruned: %d messages remain", count)
	}
}

func TestPrunerStats(t *testing.T) {
	pruner, profiles, history := newPrunerFixture(t)

	p, _ := profiles.GetOrCreateByEmail("a@example.com", 1000)
	summary := strings.Repeat("Notes about their situation and goals over time. ", 2)
	if err := profiles.UpsertMemorySummary(p.ID, p.Email, summary); err != nil {
		t.Fatalf("UpsertMemorySummary failed: %v", err)
	}
	if _, err := profiles.GetOrCreateByEmail("b@example.com", 1000); err != nil {
		t.Fatalf("GetOrCreateByEmail failed: %v", err)
	}
	seedMessages(t, history, p.ID, 5)

	stats, err := pruner.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalMessages != 5 {
		t.Errorf("TotalMessages = %d, want 5", stats.TotalMessages)
	}
	if stats.UsersWithMemory != 1 || stats.UsersWithoutMemory != 1 {
		t.Errorf("memory split = %d/%d, want 1/1", stats.UsersWithMemory, stats.UsersWithoutMemory)
	}
}
