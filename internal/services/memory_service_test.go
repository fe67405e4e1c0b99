package services

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"thrivecoach/internal/models"
)

func newTriggerTestService() *MemoryService {
	return NewMemoryService(nil, nil, nil, NewClassifier(""), nil, nil, testConfig())
}

func TestEvaluateTriggers(t *testing.T) {
	svc := newTriggerTestService()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)
	stale := now.Add(-25 * time.Hour)

	summary := "They are focused on work stress, a difficult boss, and an upcoming deadline at the office."

	tests := []struct {
		name              string
		profile           *models.UserProfile
		totalMessages     int
		substantialCount  int
		currentMessage    string
		recentUserMsgs    []string
		wantReasons       []string
		wantComprehensive bool
	}{
		{
			name:           "no triggers mid-cycle",
			profile:        &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &recent},
			totalMessages:  5,
			currentMessage: "my boss emailed about work again",
			recentUserMsgs: []string{"my boss emailed about work again"},
			wantReasons:    nil,
		},
		{
			name:           "periodic every sixth message",
			profile:        &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &recent},
			totalMessages:  6,
			currentMessage: "more about the deadline at work",
			recentUserMsgs: []string{"more about the deadline at work"},
			wantReasons:    []string{TriggerPeriodic},
		},
		{
			name:           "first greeting stays quiet",
			profile:        &models.UserProfile{},
			totalMessages:  2,
			currentMessage: "Hello",
			wantReasons:    nil,
		},
		{
			name:             "bootstrap after real conversation without a summary",
			profile:          &models.UserProfile{},
			totalMessages:    5,
			substantialCount: 2,
			currentMessage:   "lately I have been struggling to keep a routine",
			wantReasons:      []string{TriggerBootstrap},
		},
		{
			name:             "quality every fourth substantial message",
			profile:          &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &recent},
			totalMessages:    7,
			substantialCount: 4,
			currentMessage:   "the deadline at work moved again",
			recentUserMsgs:   []string{"the deadline at work moved again"},
			wantReasons:      []string{TriggerQuality},
		},
		{
			name:              "stale summary forces comprehensive",
			profile:           &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &stale},
			totalMessages:     3,
			currentMessage:    "work is fine, boss is fine",
			recentUserMsgs:    []string{"work is fine, boss is fine"},
			wantReasons:       []string{TriggerTimeBased},
			wantComprehensive: true,
		},
		{
			name:              "breakthrough forces comprehensive",
			profile:           &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &recent},
			totalMessages:     3,
			currentMessage:    "I just realized my boss isn't the real problem at work",
			recentUserMsgs:    []string{"I just realized my boss isn't the real problem at work"},
			wantReasons:       []string{TriggerBreakthrough},
			wantComprehensive: true,
		},
		{
			name:              "topic shift forces comprehensive",
			profile:           &models.UserProfile{MemorySummary: summary, MemoryUpdatedAt: &recent},
			totalMessages:     3,
			currentMessage:    "my sleep has been terrible and the doctor wants new exercise",
			recentUserMsgs:    []string{"my sleep has been terrible and the doctor wants new exercise"},
			wantReasons:       []string{TriggerTopicShift},
			wantComprehensive: true,
		},
		{
			name:              "multiple reasons accumulate",
			profile:           &models.UserProfile{},
			totalMessages:     6,
			substantialCount:  4,
			currentMessage:    "I finally figured out what was wrong",
			wantReasons:       []string{TriggerPeriodic, TriggerBootstrap, TriggerQuality, TriggerBreakthrough},
			wantComprehensive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.EvaluateTriggers(tt.profile, tt.totalMessages, tt.substantialCount,
				tt.currentMessage, tt.recentUserMsgs, now)
			if !reflect.DeepEqual(got.Reasons, tt.wantReasons) {
				t.Errorf("Reasons = %v, want %v", got.Reasons, tt.wantReasons)
			}
			if got.Comprehensive != tt.wantComprehensive {
				t.Errorf("Comprehensive = %v, want %v", got.Comprehensive, tt.wantComprehensive)
			}
		})
	}
}

func TestValidateSummary(t *testing.T) {
	recentMsgs := []string{"I keep arguing with my partner about money and our budget"}

	tests := []struct {
		name       string
		summary    string
		wantReject bool
	}{
		{"empty rejected", "", true},
		{"too short rejected", "They argue.", true},
		{
			"unrelated rejected",
			"This user enjoys gardening and long walks in the countryside every weekend.",
			true,
		},
		{
			"referencing recent conversation accepted",
			"They are in recurring conflict with their partner over the household budget and money decisions.",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := ValidateSummary(tt.summary, "", recentMsgs)
			if (reason != "") != tt.wantReject {
				t.Errorf("ValidateSummary(%q) = %q, wantReject %v", tt.summary, reason, tt.wantReject)
			}
		})
	}

	t.Run("no recent messages accepts any substantial summary", func(t *testing.T) {
		if reason := ValidateSummary("A perfectly generic but long enough summary.", "", nil); reason != "" {
			t.Errorf("expected acceptance with no anchors, got %q", reason)
		}
	})
}

func TestFilterRepresentative(t *testing.T) {
	short := "ok"
	long := strings.Repeat("substantial assistant reflection ", 3)

	var messages []models.ChatMessage
	for i := 0; i < 6; i++ {
		messages = append(messages,
			models.ChatMessage{Role: models.RoleUser, Content: "user message"},
			models.ChatMessage{Role: models.RoleAssistant, Content: short},
			models.ChatMessage{Role: models.RoleAssistant, Content: long},
		)
	}

	filtered := filterRepresentative(messages)

	if len(filtered) != maxSummarizerInput {
		t.Errorf("filtered length = %d, want cap of %d", len(filtered), maxSummarizerInput)
	}
	for _, m := range filtered {
		if m.Role == models.RoleAssistant && len(m.Content) <= assistantMinChars {
			t.Errorf("short assistant message survived the filter: %q", m.Content)
		}
	}
	// The cap keeps the most recent messages
	if filtered[len(filtered)-1].Content != long {
		t.Errorf("expected the newest message last, got %q", filtered[len(filtered)-1].Content)
	}
}

func TestMateriallyUnchanged(t *testing.T) {
	if !materiallyUnchanged("They value rest.", "they  value   REST.") {
		t.Error("whitespace and case differences should not count as change")
	}
	if materiallyUnchanged("They value rest.", "They value work.") {
		t.Error("different content should count as change")
	}
}
