package services

import (
	"strings"
	"testing"
	"time"

	"thrivecoach/internal/models"
)

func TestIsSubstantialMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"too short", "rough day", false},
		{"bare acknowledgement", "thanks", false},
		{"acknowledgement with punctuation", "thank you!", false},
		{"padded acknowledgement still short", "  ok  ", false},
		{"substantial content", "I had a hard conversation with my manager today", true},
		{"just over threshold", strings.Repeat("a", 21), true},
		{"exactly at threshold", strings.Repeat("a", 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubstantialMessage(tt.content); got != tt.want {
				t.Errorf("IsSubstantialMessage(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestHistoryAppendAndRecent(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatHistoryService(db)

	for i, content := range []string{"first", "second", "third", "fourth"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if err := svc.Append(1, role, content, "", 1); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// Another user's messages must not leak in
	if err := svc.Append(2, models.RoleUser, "other user", "", 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, err := svc.Recent(1, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	// Chronological order, most recent window
	want := []string{"second", "third", "fourth"}
	for i, m := range messages {
		if m.Content != want[i] {
			t.Errorf("messages[%d] = %q, want %q", i, m.Content, want[i])
		}
	}

	count, err := svc.Count(1)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Count = %d, want 4", count)
	}
}

func TestCountSubstantial(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatHistoryService(db)

	appends := []struct {
		role    string
		content string
	}{
		{models.RoleUser, "I have been struggling to keep a morning routine"},
		{models.RoleAssistant, "That is a very common struggle, and worth working on."},
		{models.RoleUser, "ok"},
		{models.RoleUser, "My main blocker is doomscrolling before getting out of bed"},
	}
	for _, a := range appends {
		if err := svc.Append(1, a.role, a.content, "", 1); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	count, err := svc.CountSubstantial(1)
	if err != nil {
		t.Fatalf("CountSubstantial failed: %v", err)
	}
	// Only substantial USER messages count
	if count != 2 {
		t.Errorf("CountSubstantial = %d, want 2", count)
	}
}

func TestCutoffAndDelete(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatHistoryService(db)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		insertMessage(t, db, 1, models.RoleUser, "message", base.Add(time.Duration(i)*time.Minute))
	}

	cutoff, err := svc.CutoffForKeep(1, 2)
	if err != nil {
		t.Fatalf("CutoffForKeep failed: %v", err)
	}

	deleted, err := svc.DeleteOlderThan(1, cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	remaining, err := svc.Count(1)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}
