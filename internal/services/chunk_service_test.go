package services

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Run("short text stays whole", func(t *testing.T) {
		chunks := SplitText("a short reply", 100)
		if len(chunks) != 1 || chunks[0] != "a short reply" {
			t.Errorf("SplitText = %v, want single original chunk", chunks)
		}
	})

	t.Run("chunks respect the limit", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("Keep going with the plan. ", 40))
		chunks := SplitText(text, 120)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > 120 {
				t.Errorf("chunk %d is %d chars, over the %d limit", i, len(c), 120)
			}
		}
	})

	t.Run("reassembly reproduces the words", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("One step at a time adds up. ", 30))
		chunks := SplitText(text, 90)
		joined := strings.Join(chunks, " ")
		if joined != text {
			t.Errorf("reassembled text differs\ngot:  %q\nwant: %q", joined, text)
		}
	})

	t.Run("cuts at sentence boundary past halfway", func(t *testing.T) {
		text := "First thought here. Second thought follows on. Third one keeps it moving along nicely."
		chunks := SplitText(text, 50)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %v", chunks)
		}
		first := chunks[0]
		if !strings.HasSuffix(first, ".") {
			t.Errorf("first chunk should end at a sentence terminator: %q", first)
		}
	})

	t.Run("no terminator falls back to word boundary", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("word ", 50))
		chunks := SplitText(text, 40)
		for i, c := range chunks {
			if len(c) > 40 {
				t.Errorf("chunk %d over limit: %d chars", i, len(c))
			}
			if strings.Contains(c, "  ") {
				t.Errorf("chunk %d has broken spacing: %q", i, c)
			}
		}
		if strings.Join(chunks, " ") != text {
			t.Error("word-boundary chunks do not reassemble")
		}
	})
}

func TestFirstSentencePreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", ""},
		{"single sentence", "Take a breath.", "Take a breath."},
		{"cuts at first terminator", "Take a breath. Then continue.", "Take a breath."},
		{"question terminator", "Ready to try? Good.", "Ready to try?"},
		{"no terminator returns all", "just a fragment", "just a fragment"},
		{
			"long sentence ellipsized",
			strings.Repeat("a", 150) + ".",
			strings.Repeat("a", 97) + "...",
		},
		{
			// Two-byte runes put a continuation byte at the cut
			// position; the truncation must back up to a rune start
			"multi-byte runes cut cleanly",
			strings.Repeat("é", 80) + ".",
			strings.Repeat("é", 48) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstSentencePreview(tt.text); got != tt.want {
				t.Errorf("FirstSentencePreview(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestChunkStoreAndServe(t *testing.T) {
	db := newTestDB(t)
	svc := NewChunkService(db)

	chunks := []string{
		"First part of the answer.",
		"Second part continues the thought.",
		"Third part wraps it up.",
	}
	full := strings.Join(chunks, " ")

	rec, err := svc.Store(7, full, chunks)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if rec.ConversationID == "" {
		t.Fatal("expected a conversation ID")
	}

	// First chunk: partial, with continuation metadata
	resp, err := svc.Serve(7, rec.ConversationID, 1)
	if err != nil {
		t.Fatalf("Serve(1) failed: %v", err)
	}
	if resp.Response != chunks[0] {
		t.Errorf("chunk 1 = %q, want %q", resp.Response, chunks[0])
	}
	if !resp.IsPartial || resp.TotalChunks != 3 || resp.CurrentChunk != 1 {
		t.Errorf("chunk 1 metadata = partial:%v total:%d current:%d", resp.IsPartial, resp.TotalChunks, resp.CurrentChunk)
	}
	if resp.NextChunkToken != rec.ConversationID+":2" {
		t.Errorf("NextChunkToken = %q", resp.NextChunkToken)
	}
	if resp.PreviewNext != "Second part continues the thought." {
		t.Errorf("PreviewNext = %q", resp.PreviewNext)
	}

	// Final chunk: no continuation metadata
	resp, err = svc.Serve(7, rec.ConversationID, 3)
	if err != nil {
		t.Fatalf("Serve(3) failed: %v", err)
	}
	if resp.IsPartial || resp.NextChunkToken != "" || resp.PreviewNext != "" {
		t.Errorf("final chunk should be terminal: %+v", resp)
	}

	// Out-of-range chunk is an error
	if _, err := svc.Serve(7, rec.ConversationID, 4); err == nil {
		t.Error("expected error for out-of-range chunk")
	}
	if _, err := svc.Serve(7, rec.ConversationID, 0); err == nil {
		t.Error("expected error for chunk 0")
	}

	// Another user cannot read the record
	if _, err := svc.Serve(8, rec.ConversationID, 1); err == nil {
		t.Error("expected error for foreign user")
	}

	// Re-reading an earlier chunk must not regress the stored pointer
	if _, err := svc.Serve(7, rec.ConversationID, 1); err != nil {
		t.Fatalf("re-serve failed: %v", err)
	}
	var current int
	if err := db.QueryRow(`SELECT current_chunk FROM chat_chunks WHERE conversation_id = ?`, rec.ConversationID).Scan(&current); err != nil {
		t.Fatalf("pointer read failed: %v", err)
	}
	if current != 3 {
		t.Errorf("current_chunk = %d, want 3", current)
	}
}
