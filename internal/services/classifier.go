package services

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Label is a classification emitted for a message
type Label string

const (
	LabelNewTopic         Label = "new_topic"
	LabelEmotionalSharing Label = "emotional_sharing"
	LabelOverwhelm        Label = "overwhelm"
	LabelAdviceRequest    Label = "advice_request"
	LabelPushback         Label = "pushback"
	LabelRedirection      Label = "redirection"
	LabelBreakthrough     Label = "breakthrough"
)

// KeywordTables holds the data-driven classifier configuration. The
// defaults are compiled in; a YAML file can override any table without
// touching callers.
type KeywordTables struct {
	NewTopicMarkers  []string            `yaml:"new_topic_markers"`
	EmotionalSharing []string            `yaml:"emotional_sharing"`
	Overwhelm        []string            `yaml:"overwhelm"`
	AdviceRequest    []string            `yaml:"advice_request"`
	Pushback         []string            `yaml:"pushback"`
	Redirection      []string            `yaml:"redirection"`
	Breakthrough     []string            `yaml:"breakthrough"`
	Topics           map[string][]string `yaml:"topics"`
}

func defaultKeywordTables() KeywordTables {
	return KeywordTables{
		NewTopicMarkers: []string{
			"by the way", "new topic", "let's talk about", "lets talk about",
			"changing the subject", "on another note", "speaking of",
			"something else", "different question", "unrelated",
		},
		EmotionalSharing: []string{
			"i feel", "i felt", "feeling", "makes me", "i'm sad", "im sad",
			"i'm upset", "frustrated", "anxious", "worried", "scared",
			"lonely", "hurt", "angry", "crying", "depressed",
		},
		Overwhelm: []string{
			"overwhelmed", "too much", "can't handle", "cant handle",
			"drowning", "exhausted", "burned out", "burnt out", "breaking point",
			"can't cope", "cant cope", "falling apart",
		},
		AdviceRequest: []string{
			"what should i", "how do i", "how can i", "any advice",
			"any tips", "what would you", "help me", "give me steps",
			"how to", "recommend", "suggest",
		},
		Pushback: []string{
			"that won't work", "that wont work", "i disagree", "not helpful",
			"already tried", "doesn't apply", "doesnt apply", "you don't understand",
			"you dont understand",
		},
		Redirection: []string{
			"back to", "as i was saying", "anyway", "returning to",
			"what i meant", "my original question",
		},
		Breakthrough: []string{
			"realize", "realized", "realization", "breakthrough", "aha",
			"figured out", "finally understand", "it clicked", "now i see",
			"never thought of", "eye opening", "eye-opening",
		},
		Topics: map[string][]string{
			"work":          {"work", "job", "boss", "career", "office", "coworker", "colleague", "promotion", "interview", "deadline"},
			"relationships": {"partner", "wife", "husband", "boyfriend", "girlfriend", "friend", "family", "mother", "father", "marriage", "dating", "divorce"},
			"health":        {"health", "sleep", "exercise", "diet", "doctor", "sick", "pain", "workout", "eating", "weight"},
			"finance":       {"money", "debt", "savings", "budget", "rent", "salary", "bills", "financial", "invest"},
			"growth":        {"learn", "goal", "habit", "improve", "progress", "growth", "skill", "practice", "discipline"},
			"lifestyle":     {"hobby", "travel", "move", "moving", "home", "routine", "vacation", "weekend", "fun"},
			"emotions":      {"stress", "anxiety", "happy", "sad", "angry", "fear", "mood", "emotion", "feeling", "overwhelmed"},
			"future":        {"future", "plan", "dream", "someday", "next year", "hope", "vision", "retire"},
		},
	}
}

// Classifier classifies messages against keyword tables. It is pure and
// stateless once constructed, so a single instance is shared across
// requests. The interface boundary exists so the heuristics can be
// swapped for a model-based classifier without touching callers.
type Classifier struct {
	tables KeywordTables
}

// NewClassifier builds a classifier from the embedded defaults,
// optionally overridden by a YAML file.
func NewClassifier(keywordFile string) *Classifier {
	tables := defaultKeywordTables()

	if keywordFile != "" {
		data, err := os.ReadFile(keywordFile)
		if err != nil {
			log.Printf("⚠️ [CLASSIFIER] Cannot read keyword file %s: %v (using defaults)", keywordFile, err)
		} else if err := yaml.Unmarshal(data, &tables); err != nil {
			log.Printf("⚠️ [CLASSIFIER] Invalid keyword file %s: %v (using defaults)", keywordFile, err)
			tables = defaultKeywordTables()
		} else {
			log.Printf("✅ [CLASSIFIER] Loaded keyword tables from %s", keywordFile)
		}
	}

	return &Classifier{tables: tables}
}

// Classify returns the set of labels matching a message. Advice-request
// keywords suppress the emotional-sharing label: a message cannot be
// simultaneously "just venting" and "asking for steps".
func (c *Classifier) Classify(text string) []Label {
	lower := strings.ToLower(text)
	var labels []Label

	if containsAny(lower, c.tables.NewTopicMarkers) {
		labels = append(labels, LabelNewTopic)
	}

	advice := containsAny(lower, c.tables.AdviceRequest)
	if advice {
		labels = append(labels, LabelAdviceRequest)
	}
	if !advice && containsAny(lower, c.tables.EmotionalSharing) {
		labels = append(labels, LabelEmotionalSharing)
	}
	if containsAny(lower, c.tables.Overwhelm) {
		labels = append(labels, LabelOverwhelm)
	}
	if containsAny(lower, c.tables.Pushback) {
		labels = append(labels, LabelPushback)
	}
	if containsAny(lower, c.tables.Redirection) {
		labels = append(labels, LabelRedirection)
	}
	if containsAny(lower, c.tables.Breakthrough) {
		labels = append(labels, LabelBreakthrough)
	}

	return labels
}

// HasLabel reports whether Classify(text) contains the given label
func (c *Classifier) HasLabel(text string, label Label) bool {
	for _, l := range c.Classify(text) {
		if l == label {
			return true
		}
	}
	return false
}

// TopicTags extracts the top-3 weighted topic tags across the given
// texts using the fixed topic dictionary.
func (c *Classifier) TopicTags(texts ...string) []string {
	weights := make(map[string]int)

	for _, text := range texts {
		lower := strings.ToLower(text)
		for topic, keywords := range c.tables.Topics {
			for _, kw := range keywords {
				weights[topic] += strings.Count(lower, kw)
			}
		}
	}

	type scored struct {
		topic  string
		weight int
	}
	var ranked []scored
	for topic, w := range weights {
		if w > 0 {
			ranked = append(ranked, scored{topic, w})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].topic < ranked[j].topic
	})

	tags := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		tags = append(tags, ranked[i].topic)
	}
	return tags
}

// TopicSimilarity computes Jaccard overlap between two topic-tag sets:
// |intersection| / |union|. Both sides empty counts as similar (1.0);
// exactly one side empty counts as maximally dissimilar (0.0).
func TopicSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// DescribeLabels renders labels for log lines
func DescribeLabels(labels []Label) string {
	if len(labels) == 0 {
		return "none"
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
