package services

import (
	"strings"

	"thrivecoach/internal/models"
)

// Message kinds for output-token estimation. Initialization turns carry
// rich stored context and tend to produce longer replies; follow-ups
// stay short.
const (
	MessageKindInit     = "init"
	MessageKindFollowUp = "followup"
	MessageKindGeneral  = "general"
)

const (
	// ~4 chars/token heuristic; no tokenizer round trip, no network call
	charsPerToken = 4

	// Per-message overhead for role + separators
	messageOverheadTokens = 4

	initOutputMultiplier     = 1.2
	initOutputOffset         = 50
	initOutputCap            = 700
	followUpOutputMultiplier = 0.8
	followUpOutputCap        = 250
	generalOutputCap         = 450
	complexOutputCap         = 900
)

// EstimateTokens returns an approximate token count using the ~4
// chars/token heuristic.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessagesTokens estimates the total token count for a prompt.
// Accounts for role overhead per message.
func EstimateMessagesTokens(messages []models.PromptMessage) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens
		total += EstimateTokens(msg.Content)
	}
	return total
}

// EstimateOutputTokens predicts completion length from input size and
// message kind. Initialization turns get a higher multiplier plus a
// fixed offset; simple follow-ups a lower one with a tighter cap.
// Complex queries raise the cap regardless of kind.
func EstimateOutputTokens(inputTokens int, messageKind string, message string) int {
	var estimate, limit int

	switch messageKind {
	case MessageKindInit:
		estimate = int(float64(inputTokens)*initOutputMultiplier) + initOutputOffset
		limit = initOutputCap
	case MessageKindFollowUp:
		estimate = int(float64(inputTokens) * followUpOutputMultiplier)
		limit = followUpOutputCap
	default:
		estimate = inputTokens
		limit = generalOutputCap
	}

	if IsComplexQuery(message) {
		limit = complexOutputCap
	}

	if estimate > limit {
		estimate = limit
	}
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

// interrogative openers that mark a message as a complex query
var interrogativeOpeners = []string{
	"how", "why", "what", "when", "where", "which", "who",
	"can you", "could you", "would you", "should i", "explain",
}

// IsComplexQuery reports whether a message looks like it needs a long,
// reasoned answer rather than a short acknowledgement.
func IsComplexQuery(message string) bool {
	if strings.Contains(message, "?") {
		return true
	}
	if len(message) > 100 {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, opener := range interrogativeOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

// BreakdownPrompt computes a per-section token breakdown for the
// response payload. Sections follow prompt assembly order: persona,
// context injection, history, current message.
func BreakdownPrompt(messages []models.PromptMessage, outputTokens int) models.TokenBreakdown {
	var bd models.TokenBreakdown

	// The current message is the final user entry; a style directive
	// may trail it
	currentIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			currentIdx = i
			break
		}
	}

	for i, msg := range messages {
		tokens := EstimateTokens(msg.Content) + messageOverheadTokens
		switch {
		case msg.Role == models.RoleSystem && i == 0:
			bd.SystemTokens += tokens
		case msg.Role == models.RoleSystem:
			bd.ContextTokens += tokens
		case i == currentIdx:
			bd.MessageTokens += tokens
		default:
			bd.HistoryTokens += tokens
		}
	}

	bd.OutputTokens = outputTokens
	bd.Total = bd.SystemTokens + bd.ContextTokens + bd.HistoryTokens + bd.MessageTokens + bd.OutputTokens
	return bd
}
