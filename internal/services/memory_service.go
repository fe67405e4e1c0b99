package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"thrivecoach/internal/config"
	"thrivecoach/internal/models"
)

// Summarization trigger reason codes
const (
	TriggerPeriodic     = "periodic"
	TriggerBootstrap    = "bootstrap"
	TriggerQuality      = "quality"
	TriggerTimeBased    = "time_based"
	TriggerBreakthrough = "breakthrough"
	TriggerTopicShift   = "topic_shift"
	TriggerSessionEnd   = "session_end"
)

const (
	incrementalWindow       = 10
	comprehensiveWindow     = 15
	maxSummarizerInput      = 8   // representative messages fed to the model
	minValidSummaryChars    = 20  // shorter generations are rejected
	bootstrapMinSubstantial = 2   // bootstrap waits for this much real conversation
	summaryMaxTokens        = 250 // ~150-word target plus slack
	summaryTemperature      = 0.3
	assistantMinChars       = 50 // assistant messages below this are filler
)

// TriggerDecision is the outcome of evaluating all trigger conditions
// after a completed turn
type TriggerDecision struct {
	Reasons       []string
	Comprehensive bool
}

// Triggered reports whether any condition fired
func (d TriggerDecision) Triggered() bool {
	return len(d.Reasons) > 0
}

// MemoryService maintains the durable per-user memory summary: it
// decides when to refresh, merges recent history into the existing
// summary via a model call, validates the result, and persists it with
// race-safe upsert semantics.
type MemoryService struct {
	profiles   *ProfileService
	history    *ChatHistoryService
	completion *CompletionService
	classifier *Classifier
	pruner     *HistoryPruner
	redis      *RedisService // optional; narrows the concurrent-summarization window
	cfg        *config.Config
}

// NewMemoryService creates a memory service
func NewMemoryService(
	profiles *ProfileService,
	history *ChatHistoryService,
	completion *CompletionService,
	classifier *Classifier,
	pruner *HistoryPruner,
	redis *RedisService,
	cfg *config.Config,
) *MemoryService {
	return &MemoryService{
		profiles:   profiles,
		history:    history,
		completion: completion,
		classifier: classifier,
		pruner:     pruner,
		redis:      redis,
		cfg:        cfg,
	}
}

// EvaluateTriggers computes the logical OR of all independent trigger
// conditions for a just-completed turn. totalMessages includes the
// current turn; substantialCount is cumulative across all time (this
// matches observed production behavior rather than resetting per
// summary; flagged for product confirmation).
func (s *MemoryService) EvaluateTriggers(
	profile *models.UserProfile,
	totalMessages, substantialCount int,
	currentMessage string,
	recentUserMessages []string,
	now time.Time,
) TriggerDecision {
	var decision TriggerDecision
	addReason := func(reason string, comprehensive bool) {
		decision.Reasons = append(decision.Reasons, reason)
		if comprehensive {
			decision.Comprehensive = true
		}
	}

	if totalMessages > 0 && totalMessages%s.cfg.PeriodicTriggerEvery == 0 {
		addReason(TriggerPeriodic, false)
	}

	// Bootstrap waits for a little real conversation: a bare first
	// greeting has nothing worth a model call yet
	if profile.MemorySummary == "" && substantialCount >= bootstrapMinSubstantial {
		addReason(TriggerBootstrap, false)
	}

	if substantialCount > 0 && substantialCount%s.cfg.QualityTriggerEvery == 0 {
		addReason(TriggerQuality, false)
	}

	// Time-based only counts when conversation actually happened since
	// the last update
	if profile.MemoryUpdatedAt != nil && now.Sub(*profile.MemoryUpdatedAt) > s.cfg.SummaryStaleAfter && totalMessages > 0 {
		addReason(TriggerTimeBased, true)
	}

	if s.classifier.HasLabel(currentMessage, LabelBreakthrough) {
		addReason(TriggerBreakthrough, true)
	}

	// Topic shift against the stored summary. Comprehensive, since a
	// shifted conversation means the summary is most stale.
	if profile.MemorySummary != "" && len(recentUserMessages) > 0 {
		messageTags := s.classifier.TopicTags(recentUserMessages...)
		summaryTags := s.classifier.TopicTags(profile.MemorySummary)
		if TopicSimilarity(messageTags, summaryTags) < s.cfg.TopicShiftThreshold {
			addReason(TriggerTopicShift, true)
		}
	}

	return decision
}

// RunAfterTurn evaluates triggers for a completed turn and, when any
// fire, summarizes synchronously so the next turn observes a fresh
// summary. Errors are logged, never propagated: summarization failures
// must not fail the enclosing request.
func (s *MemoryService) RunAfterTurn(ctx context.Context, profile *models.UserProfile, currentMessage string) {
	totalMessages, err := s.history.Count(profile.ID)
	if err != nil {
		log.Printf("⚠️ [MEMORY] Failed to count messages for user %d: %v (skipping trigger check)", profile.ID, err)
		return
	}

	substantialCount, err := s.history.CountSubstantial(profile.ID)
	if err != nil {
		log.Printf("⚠️ [MEMORY] Failed to count substantial messages for user %d: %v", profile.ID, err)
		substantialCount = 0
	}

	recentUser := s.recentUserMessages(profile.ID, 3)

	decision := s.EvaluateTriggers(profile, totalMessages, substantialCount, currentMessage, recentUser, time.Now().UTC())
	if !decision.Triggered() {
		return
	}

	log.Printf("🧠 [MEMORY] Summarization triggered for user %d (reasons: %s, comprehensive: %v)",
		profile.ID, strings.Join(decision.Reasons, ","), decision.Comprehensive)

	if m := GetMetrics(); m != nil {
		for _, reason := range decision.Reasons {
			m.RecordSummarization(reason)
		}
	}

	if err := s.Summarize(ctx, profile, decision.Comprehensive); err != nil {
		log.Printf("⚠️ [MEMORY] Summarization failed for user %d: %v", profile.ID, err)
		if m := GetMetrics(); m != nil {
			m.RecordSummarizationFailure()
		}
	}
}

// RunSessionEnd performs the comprehensive session-end update, invoked
// from the background sweep when an idle session is declared over.
func (s *MemoryService) RunSessionEnd(ctx context.Context, profile *models.UserProfile) {
	log.Printf("🌙 [MEMORY] Session-end summarization for user %d", profile.ID)
	if m := GetMetrics(); m != nil {
		m.RecordSummarization(TriggerSessionEnd)
	}
	if err := s.Summarize(ctx, profile, true); err != nil {
		log.Printf("⚠️ [MEMORY] Session-end summarization failed for user %d: %v", profile.ID, err)
		if m := GetMetrics(); m != nil {
			m.RecordSummarizationFailure()
		}
	}
}

// Summarize fetches bounded recent history, merges it with the
// existing summary via the model, validates, persists, and prunes.
// The update must incorporate new material while preserving
// still-relevant history; a failure never regresses a non-empty
// summary to empty.
func (s *MemoryService) Summarize(ctx context.Context, profile *models.UserProfile, comprehensive bool) error {
	unlock := s.tryLock(ctx, profile.ID)
	if unlock == nil {
		log.Printf("⏭️ [MEMORY] Summarization already in flight for user %d, skipping", profile.ID)
		return nil
	}
	defer unlock()

	window := incrementalWindow
	if comprehensive {
		window = comprehensiveWindow
	}

	messages, err := s.history.Recent(profile.ID, window)
	if err != nil {
		return s.fallback(profile, fmt.Errorf("failed to fetch history: %w", err))
	}
	if len(messages) == 0 {
		return nil // nothing to fold in
	}

	filtered := filterRepresentative(messages)
	prompt := s.buildUpdatePrompt(profile.MemorySummary, filtered)

	result, err := s.completion.Complete(ctx, TierLight, prompt, summaryTemperature, summaryMaxTokens)
	if err != nil {
		return s.fallback(profile, fmt.Errorf("completion failed: %w", err))
	}

	newSummary := strings.TrimSpace(result.Text)
	if reason := ValidateSummary(newSummary, profile.MemorySummary, lastUserContents(messages, 3)); reason != "" {
		if materiallyUnchanged(newSummary, profile.MemorySummary) {
			// The model returned what we already have; keep the old
			// summary untouched
			log.Printf("⏭️ [MEMORY] Summary unchanged for user %d (%s), keeping prior", profile.ID, reason)
			return nil
		}
		return s.fallback(profile, fmt.Errorf("summary rejected: %s", reason))
	}

	if err := s.profiles.UpsertMemorySummary(profile.ID, profile.Email, newSummary); err != nil {
		return s.fallback(profile, fmt.Errorf("failed to persist summary: %w", err))
	}

	profile.MemorySummary = newSummary
	now := time.Now().UTC()
	profile.MemoryUpdatedAt = &now
	log.Printf("✅ [MEMORY] Summary updated for user %d (%d chars)", profile.ID, len(newSummary))

	// History is now safely superseded; reclaim storage
	if result := s.pruner.CleanupUser(profile.ID, s.cfg.PruneKeepMessages, false); result.Success {
		log.Printf("🧹 [MEMORY] Pruned %d messages for user %d (kept %d)", result.Deleted, profile.ID, result.Kept)
	}

	return nil
}

// fallback handles a failed summarization attempt. A minimal
// placeholder is written only when no summary exists at all; a good
// summary is never overwritten with a degraded one.
func (s *MemoryService) fallback(profile *models.UserProfile, cause error) error {
	if profile.MemorySummary != "" {
		return cause
	}

	who := profile.Name
	if who == "" {
		who = profile.Email
	}
	placeholder := fmt.Sprintf("User is %s. Earlier conversation could not be summarized yet.", who)
	if err := s.profiles.UpsertMemorySummary(profile.ID, profile.Email, placeholder); err != nil {
		return fmt.Errorf("%v (placeholder write also failed: %w)", cause, err)
	}
	profile.MemorySummary = placeholder
	return cause
}

// filterRepresentative keeps all user messages plus substantial
// assistant messages, capped at the most recent maxSummarizerInput.
func filterRepresentative(messages []models.ChatMessage) []models.ChatMessage {
	var filtered []models.ChatMessage
	for _, m := range messages {
		if m.Role == models.RoleUser || len(m.Content) > assistantMinChars {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) > maxSummarizerInput {
		filtered = filtered[len(filtered)-maxSummarizerInput:]
	}
	return filtered
}

// buildUpdatePrompt asks the model to update, not replace, the
// existing summary.
func (s *MemoryService) buildUpdatePrompt(existingSummary string, messages []models.ChatMessage) []models.PromptMessage {
	var b strings.Builder

	if existingSummary != "" {
		b.WriteString("CURRENT MEMORY:\n")
		b.WriteString(existingSummary)
		b.WriteString("\n\nRECENT CONVERSATION:\n")
	} else {
		b.WriteString("RECENT CONVERSATION:\n")
	}

	for _, m := range messages {
		role := "USER"
		if m.Role == models.RoleAssistant {
			role = "COACH"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}

	system := `You maintain a running memory summary about a wellness-coaching client. Update the CURRENT MEMORY with what is new in the RECENT CONVERSATION. Incorporate new facts, goals, emotional context, and progress while preserving still-relevant earlier history. Do not discard information that is not contradicted. Write about 150 words of plain prose. Return only the updated summary.`
	if existingSummary == "" {
		system = `You maintain a running memory summary about a wellness-coaching client. Write a summary of what matters from the RECENT CONVERSATION: facts, goals, emotional context, and progress. Write about 150 words of plain prose. Return only the summary.`
	}

	return []models.PromptMessage{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: b.String()},
	}
}

// ValidateSummary checks a generated summary before persistence.
// Returns an empty string when valid, else a rejection reason. The
// reference check is heuristic: the summary should mention at least
// one significant token from the last three user messages.
func ValidateSummary(summary, oldSummary string, recentUserMessages []string) string {
	if summary == "" {
		return "empty summary"
	}
	if len(summary) < minValidSummaryChars {
		return fmt.Sprintf("summary too short (%d chars)", len(summary))
	}

	tokens := significantTokens(recentUserMessages)
	if len(tokens) == 0 {
		return "" // nothing to anchor on; accept
	}

	lower := strings.ToLower(summary)
	for token := range tokens {
		if strings.Contains(lower, token) {
			return ""
		}
	}
	return "summary does not reference recent conversation"
}

// stopwords excluded from the significant-token reference check
var summaryStopwords = map[string]bool{
	"about": true, "after": true, "again": true, "because": true,
	"being": true, "could": true, "doing": true, "going": true,
	"having": true, "other": true, "really": true, "should": true,
	"something": true, "their": true, "there": true, "these": true,
	"thing": true, "things": true, "think": true, "though": true,
	"through": true, "today": true, "want": true, "where": true,
	"which": true, "while": true, "would": true, "your": true,
}

func significantTokens(messages []string) map[string]bool {
	tokens := make(map[string]bool)
	for _, msg := range messages {
		for _, word := range strings.Fields(strings.ToLower(msg)) {
			word = strings.Trim(word, ".,!?;:'\"()")
			if len(word) > 4 && !summaryStopwords[word] {
				tokens[word] = true
			}
		}
	}
	return tokens
}

func materiallyUnchanged(a, b string) bool {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return normalize(a) == normalize(b)
}

func (s *MemoryService) recentUserMessages(userID int64, n int) []string {
	messages, err := s.history.Recent(userID, incrementalWindow)
	if err != nil {
		return nil
	}
	return lastUserContents(messages, n)
}

func lastUserContents(messages []models.ChatMessage, n int) []string {
	var contents []string
	for i := len(messages) - 1; i >= 0 && len(contents) < n; i-- {
		if messages[i].Role == models.RoleUser {
			contents = append(contents, messages[i].Content)
		}
	}
	return contents
}

// tryLock acquires the optional per-user Redis lock. Returns a release
// func, or nil when another summarization holds the lock. Without
// Redis it always succeeds: the upsert's retry discipline handles the
// (accepted, logged) single-node race.
func (s *MemoryService) tryLock(ctx context.Context, userID int64) func() {
	if s.redis == nil {
		return func() {}
	}

	key := fmt.Sprintf("memory:lock:%d", userID)
	value := uuid.NewString()
	acquired, err := s.redis.AcquireLock(ctx, key, value, 60*time.Second)
	if err != nil {
		log.Printf("⚠️ [MEMORY] Lock acquire failed for user %d: %v (proceeding without)", userID, err)
		return func() {}
	}
	if !acquired {
		return nil
	}
	return func() {
		if _, err := s.redis.ReleaseLock(context.Background(), key, value); err != nil {
			log.Printf("⚠️ [MEMORY] Lock release failed for user %d: %v", userID, err)
		}
	}
}
