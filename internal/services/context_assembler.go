package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"thrivecoach/internal/models"
)

const (
	simpleMessageMaxChars   = 80
	simpleContextMaxChars   = 1500
	summaryExcerptInitChars = 300
	summaryExcerptChars     = 200
	historyMessageMaxChars  = 250
	substantialSummaryChars = 100
)

// AssembledContext is the assembler's output for one turn
type AssembledContext struct {
	Tier        string
	Messages    []models.PromptMessage
	MessageKind string // for output-token estimation
	Digest      string // stable hash of the injected context, for cache keys
}

// ContextAssembler builds {model tier, ordered prompt} for a turn under
// the token budget, from profile, memory summary, and recent history.
type ContextAssembler struct {
	personas   *PersonaService
	classifier *Classifier
}

// NewContextAssembler creates a context assembler
func NewContextAssembler(personas *PersonaService, classifier *Classifier) *ContextAssembler {
	return &ContextAssembler{personas: personas, classifier: classifier}
}

// Assemble constructs the prompt for a turn. It must always return
// something usable: any panic while building rich context falls back
// to {short persona, user message}.
func (a *ContextAssembler) Assemble(profile *models.UserProfile, history []models.ChatMessage, message string, isFirstMessage bool) (result *AssembledContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [ASSEMBLER] Panic while assembling context for user %d: %v (using fallback prompt)", profile.ID, r)
			result = a.fallback(message)
		}
	}()

	newTopic := a.classifier.HasLabel(message, LabelNewTopic)
	hasMemory := len(profile.MemorySummary) > 0
	tier := a.selectTier(profile, history, message, isFirstMessage)

	variant := SelectVariant(len(history), hasMemory, newTopic)
	persona := a.personas.Get(variant)

	messages := []models.PromptMessage{
		{Role: models.RoleSystem, Content: persona},
	}

	contextInjection := a.buildContextInjection(profile, isFirstMessage)
	if contextInjection != "" {
		messages = append(messages, models.PromptMessage{Role: models.RoleSystem, Content: contextInjection})
	}

	messages = append(messages, recentHistorySlice(history, isFirstMessage)...)
	messages = append(messages, models.PromptMessage{Role: models.RoleUser, Content: message})

	if directive := styleDirective(profile); directive != "" {
		messages = append(messages, models.PromptMessage{Role: models.RoleSystem, Content: directive})
	}

	kind := MessageKindGeneral
	if isFirstMessage {
		kind = MessageKindInit
	} else if isSimpleMessage(message) {
		kind = MessageKindFollowUp
	}

	return &AssembledContext{
		Tier:        tier,
		Messages:    messages,
		MessageKind: kind,
		Digest:      contextDigest(persona, contextInjection, history),
	}
}

// selectTier applies the model-tier policy in decision order; the first
// matching rule wins.
func (a *ContextAssembler) selectTier(profile *models.UserProfile, history []models.ChatMessage, message string, isFirstMessage bool) string {
	// Initialization: lean on memory when it is substantial, otherwise
	// spend on a rich first impression
	if isFirstMessage {
		if len(profile.MemorySummary) > substantialSummaryChars {
			return TierLight
		}
		return TierHeavy
	}

	// Cold start: no structured goals or challenges yet needs more
	// reasoning from the model
	if len(history) == 0 && len(profile.Goals) == 0 && len(profile.Challenges) == 0 {
		return TierHeavy
	}

	if isSimpleMessage(message) && !IsComplexQuery(message) && !isComplexTask(message) &&
		totalContextChars(profile, history) < simpleContextMaxChars {
		return TierLight
	}
	return TierHeavy
}

var complexTaskMarkers = []string{
	"make me a plan", "create a plan", "step by step", "help me figure out",
	"break down", "strategy for", "roadmap",
}

func isComplexTask(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range complexTaskMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var conversationalFiller = []string{
	"hi", "hello", "hey", "thanks", "thank you", "ok", "okay", "yes", "no", "sure",
}

var followUpMarkers = []string{
	"and then", "what about", "also", "continue", "go on", "tell me more",
}

func isSimpleMessage(message string) bool {
	if len(message) < simpleMessageMaxChars {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, filler := range conversationalFiller {
		if lower == filler || strings.HasPrefix(lower, filler+" ") || strings.HasPrefix(lower, filler+",") {
			return true
		}
	}
	for _, marker := range followUpMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func totalContextChars(profile *models.UserProfile, history []models.ChatMessage) int {
	total := len(profile.MemorySummary)
	for _, m := range history {
		total += len(m.Content)
	}
	return total
}

// buildContextInjection renders the single context message: a bounded
// memory excerpt plus the current structured goals and challenges
// verbatim, so they are never silently stale.
func (a *ContextAssembler) buildContextInjection(profile *models.UserProfile, isFirstMessage bool) string {
	var b strings.Builder

	if profile.MemorySummary != "" {
		limit := summaryExcerptChars
		if isFirstMessage {
			limit = summaryExcerptInitChars
		}
		excerpt := profile.MemorySummary
		if len(excerpt) > limit {
			excerpt = excerpt[:limit] + "..."
		}
		b.WriteString("What you remember about this person: ")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}

	if profile.Name != "" {
		fmt.Fprintf(&b, "Their name is %s.\n", profile.Name)
	}
	if len(profile.Goals) > 0 {
		b.WriteString("Current goals:\n")
		for _, g := range profile.Goals {
			fmt.Fprintf(&b, "- %s: %s\n", g.Label, g.Description)
		}
	}
	if len(profile.Challenges) > 0 {
		b.WriteString("Current challenges:\n")
		for _, ch := range profile.Challenges {
			fmt.Fprintf(&b, "- %s: %s\n", ch.Label, ch.Description)
		}
	}

	return strings.TrimSpace(b.String())
}

// recentHistorySlice returns a capped slice of the most recent turns,
// each individually truncated.
func recentHistorySlice(history []models.ChatMessage, isFirstMessage bool) []models.PromptMessage {
	limit := 4
	if isFirstMessage {
		limit = 2
	}
	start := len(history) - limit
	if start < 0 {
		start = 0
	}

	out := make([]models.PromptMessage, 0, limit)
	for _, m := range history[start:] {
		content := m.Content
		if len(content) > historyMessageMaxChars {
			content = content[:historyMessageMaxChars] + " [truncated]"
		}
		out = append(out, models.PromptMessage{Role: m.Role, Content: content})
	}
	return out
}

// styleDirective appends communication-style and format preferences as
// a trailing directive, never replacing the persona.
func styleDirective(profile *models.UserProfile) string {
	var parts []string
	if profile.CommunicationStyle != "" {
		parts = append(parts, fmt.Sprintf("Preferred communication style: %s.", profile.CommunicationStyle))
	}
	if profile.ResponseFormat != "" {
		parts = append(parts, fmt.Sprintf("Preferred response format: %s.", profile.ResponseFormat))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

func (a *ContextAssembler) fallback(message string) *AssembledContext {
	return &AssembledContext{
		Tier: TierHeavy,
		Messages: []models.PromptMessage{
			{Role: models.RoleSystem, Content: a.personas.Get(PersonaShort)},
			{Role: models.RoleUser, Content: message},
		},
		MessageKind: MessageKindGeneral,
		Digest:      "fallback",
	}
}

func contextDigest(persona, contextInjection string, history []models.ChatMessage) string {
	h := sha256.New()
	h.Write([]byte(persona))
	h.Write([]byte{0})
	h.Write([]byte(contextInjection))
	for _, m := range history {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{':'})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
