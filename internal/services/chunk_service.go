package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"thrivecoach/internal/database"
	"thrivecoach/internal/models"
)

const previewMaxChars = 100

// ChunkService splits oversized completions into sentence-aligned
// chunks and serves them incrementally through the continuation
// protocol.
type ChunkService struct {
	db *database.DB
}

// NewChunkService creates a chunk service
func NewChunkService(db *database.DB) *ChunkService {
	return &ChunkService{db: db}
}

// SplitText splits text into word-bounded chunks of at most maxChars.
// When a chunk fills up, the cut prefers the last sentence terminator
// found past the chunk's halfway point; without one it breaks at the
// word boundary. Concatenating the chunks reproduces the original text
// modulo whitespace normalization.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, word := range words {
		needed := len(word)
		if current.Len() > 0 {
			needed++ // joining space
		}
		if current.Len()+needed <= maxChars {
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(word)
			continue
		}

		// Chunk is full. Prefer cutting at the last sentence
		// terminator past the halfway point.
		chunk := current.String()
		if cut := lastSentenceEnd(chunk); cut > len(chunk)/2 {
			remainder := strings.TrimSpace(chunk[cut+1:])
			chunks = append(chunks, strings.TrimSpace(chunk[:cut+1]))
			current.Reset()
			if remainder != "" && len(remainder)+1+len(word) <= maxChars {
				current.WriteString(remainder)
			} else if remainder != "" {
				chunks = append(chunks, remainder)
			}
		} else {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	flush()

	return chunks
}

// lastSentenceEnd returns the index of the last sentence terminator in
// s, or -1
func lastSentenceEnd(s string) int {
	return strings.LastIndexAny(s, ".!?")
}

// FirstSentencePreview returns the first sentence of text, ellipsized
// at previewMaxChars
func FirstSentencePreview(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if end := strings.IndexAny(trimmed, ".!?"); end >= 0 {
		trimmed = trimmed[:end+1]
	}
	if len(trimmed) > previewMaxChars {
		cut := previewMaxChars - 3
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = trimmed[:cut] + "..."
	}
	return trimmed
}

// Store persists a chunked response under a fresh conversation ID and
// returns the record.
func (s *ChunkService) Store(userID int64, fullResponse string, chunks []string) (*models.ChatChunkRecord, error) {
	conversationID := uuid.NewString()

	chunksJSON, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunks: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO chat_chunks (conversation_id, user_id, full_response, chunks, current_chunk, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, conversationID, userID, fullResponse, string(chunksJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store chunk record: %w", err)
	}

	log.Printf("📦 [CHUNKER] Stored %d chunks for user %d (conversation %s)", len(chunks), userID, conversationID)

	return &models.ChatChunkRecord{
		ConversationID: conversationID,
		UserID:         userID,
		FullResponse:   fullResponse,
		Chunks:         chunks,
		CurrentChunk:   1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Get fetches a chunk record scoped to the requesting user. A missing
// record returns (nil, nil).
func (s *ChunkService) Get(userID int64, conversationID string) (*models.ChatChunkRecord, error) {
	var rec models.ChatChunkRecord
	var chunksJSON string

	err := s.db.QueryRow(`
		SELECT id, conversation_id, user_id, full_response, chunks, current_chunk, created_at, updated_at
		FROM chat_chunks
		WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID).Scan(
		&rec.ID, &rec.ConversationID, &rec.UserID, &rec.FullResponse,
		&chunksJSON, &rec.CurrentChunk, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk record: %w", err)
	}

	if err := json.Unmarshal([]byte(chunksJSON), &rec.Chunks); err != nil {
		// Corrupted chunk index rejects as not-found rather than
		// serving garbage
		log.Printf("⚠️ [CHUNKER] Corrupted chunks JSON for conversation %s: %v", conversationID, err)
		return nil, nil
	}

	return &rec, nil
}

// Serve returns chunk chunkNumber (1-based) of a stored record plus
// continuation metadata, advancing the stored pointer. An index beyond
// the stored array is an error, not a silent empty response.
func (s *ChunkService) Serve(userID int64, conversationID string, chunkNumber int) (*models.ChatTurnResponse, error) {
	rec, err := s.Get(userID, conversationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	if chunkNumber < 1 || chunkNumber > len(rec.Chunks) {
		return nil, fmt.Errorf("chunk %d out of range (conversation has %d chunks)", chunkNumber, len(rec.Chunks))
	}

	resp := &models.ChatTurnResponse{
		Response:     rec.Chunks[chunkNumber-1],
		TotalChunks:  len(rec.Chunks),
		CurrentChunk: chunkNumber,
		IsPartial:    chunkNumber < len(rec.Chunks),
	}
	if resp.IsPartial {
		resp.ConversationID = conversationID
		resp.NextChunkToken = continuationToken(conversationID, chunkNumber+1)
		resp.PreviewNext = FirstSentencePreview(rec.Chunks[chunkNumber])
	}

	// Advance the pointer, never regress it; once it reaches
	// len(chunks) the record is inert. Best-effort: a failed advance
	// only risks re-serving.
	if chunkNumber > rec.CurrentChunk {
		if _, err := s.db.Exec(`
			UPDATE chat_chunks SET current_chunk = ?, updated_at = ? WHERE user_id = ? AND conversation_id = ?
		`, chunkNumber, time.Now().UTC(), userID, conversationID); err != nil {
			log.Printf("⚠️ [CHUNKER] Failed to advance chunk pointer for %s: %v", conversationID, err)
		}
	}

	return resp, nil
}

func continuationToken(conversationID string, nextChunk int) string {
	return fmt.Sprintf("%s:%d", conversationID, nextChunk)
}
