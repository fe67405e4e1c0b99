package services

import (
	"math"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier("")

	tests := []struct {
		name string
		text string
		want []Label
	}{
		{
			name: "plain statement gets no labels",
			text: "I went for a walk this morning",
			want: nil,
		},
		{
			name: "emotional sharing",
			text: "I feel like nobody listens to me",
			want: []Label{LabelEmotionalSharing},
		},
		{
			name: "advice request suppresses emotional sharing",
			text: "I feel stuck, what should I do about my job",
			want: []Label{LabelAdviceRequest},
		},
		{
			name: "new topic marker",
			text: "By the way, I started a pottery class",
			want: []Label{LabelNewTopic},
		},
		{
			name: "overwhelm",
			text: "Everything is just too much right now",
			want: []Label{LabelOverwhelm},
		},
		{
			name: "pushback",
			text: "I already tried that and it made things worse",
			want: []Label{LabelPushback},
		},
		{
			name: "breakthrough",
			text: "I just realized I've been avoiding the real problem",
			want: []Label{LabelBreakthrough},
		},
		{
			name: "multiple labels in order",
			text: "I'm so frustrated, I'm completely overwhelmed by all of it",
			want: []Label{LabelEmotionalSharing, LabelOverwhelm},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTopicTags(t *testing.T) {
	c := NewClassifier("")

	tags := c.TopicTags("My boss gave me a new deadline at work and I can't sleep")
	if len(tags) == 0 {
		t.Fatal("expected topic tags, got none")
	}
	if tags[0] != "work" {
		t.Errorf("dominant tag = %q, want %q (tags: %v)", tags[0], "work", tags)
	}
	if len(tags) > 3 {
		t.Errorf("got %d tags, want at most 3", len(tags))
	}

	if got := c.TopicTags("zzz qqq xyzzy"); len(got) != 0 {
		t.Errorf("expected no tags for topic-free text, got %v", got)
	}

	// Same input twice must rank identically
	a := c.TopicTags("stress about money and rent and my partner")
	b := c.TopicTags("stress about money and rent and my partner")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("TopicTags not deterministic: %v vs %v", a, b)
	}
}

func TestTopicSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 1.0},
		{"one empty", []string{"work"}, nil, 0.0},
		{"identical", []string{"work", "health"}, []string{"work", "health"}, 1.0},
		{"disjoint", []string{"work"}, []string{"health"}, 0.0},
		{"partial overlap", []string{"work", "health"}, []string{"health", "finance"}, 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopicSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TopicSimilarity(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
			// Jaccard is symmetric
			if rev := TopicSimilarity(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("similarity not symmetric: %f vs %f", got, rev)
			}
		})
	}
}
