package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"thrivecoach/internal/config"
	"thrivecoach/internal/models"
)

const (
	initCompletionTimeout = 10 * time.Second
	turnCompletionTimeout = 15 * time.Second

	// Starting allowance for a profile created on first contact
	defaultInitialTokens = 50000

	chatTemperature = 0.7
)

// fallbackGreeting is served when the completion call for a first
// message fails or times out. A new user gets a warm opening instead
// of an error page; the turn is not billed.
const fallbackGreeting = "Hi, I'm really glad you're here. I'm your wellness coach, and this space is yours. What's on your mind today?"

// ChatService runs the full turn pipeline: profile resolution, token
// preflight, session tracking, cache probe, context assembly, the
// model call, chunking, persistence, billing, and memory triggers.
type ChatService struct {
	profiles   *ProfileService
	history    *ChatHistoryService
	sessions   *SessionTracker
	assembler  *ContextAssembler
	cache      *ResponseCache
	completion *CompletionService
	chunks     *ChunkService
	memory     *MemoryService
	cfg        *config.Config
}

// NewChatService creates a chat service
func NewChatService(
	profiles *ProfileService,
	history *ChatHistoryService,
	sessions *SessionTracker,
	assembler *ContextAssembler,
	cache *ResponseCache,
	completion *CompletionService,
	chunks *ChunkService,
	memory *MemoryService,
	cfg *config.Config,
) *ChatService {
	return &ChatService{
		profiles:   profiles,
		history:    history,
		sessions:   sessions,
		assembler:  assembler,
		cache:      cache,
		completion: completion,
		chunks:     chunks,
		memory:     memory,
		cfg:        cfg,
	}
}

// ProcessTurn handles one user message end to end. A non-nil shortfall
// means the user's balance cannot cover the turn; the caller maps it
// to 403.
func (s *ChatService) ProcessTurn(ctx context.Context, req models.ChatTurnRequest) (*models.ChatTurnResponse, *models.TokenShortfallError, error) {
	start := time.Now()
	if m := GetMetrics(); m != nil {
		m.RecordChatRequest()
		defer func() { m.RecordChatLatency(time.Since(start).Seconds()) }()
	}

	profile, err := s.profiles.GetOrCreateByEmail(req.Email, defaultInitialTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve profile: %w", err)
	}

	now := time.Now().UTC()
	s.sessions.RecordActivity(profile.ID, now)

	recentHistory, err := s.history.Recent(profile.ID, incrementalWindow)
	if err != nil {
		log.Printf("⚠️ [CHAT] Failed to load history for user %d: %v (assembling without)", profile.ID, err)
		recentHistory = nil
	}

	assembled := s.assembler.Assemble(profile, recentHistory, req.Message, req.IsFirstMessage)

	// Preflight: the full prompt plus the predicted reply must fit the
	// balance before anything is spent
	inputTokens := EstimateMessagesTokens(assembled.Messages)
	outputTokens := EstimateOutputTokens(inputTokens, assembled.MessageKind, req.Message)
	breakdown := BreakdownPrompt(assembled.Messages, outputTokens)

	if profile.TokenBalance < int64(breakdown.Total) {
		log.Printf("🚫 [CHAT] Token shortfall for user %d: required %d, available %d",
			profile.ID, breakdown.Total, profile.TokenBalance)
		return nil, &models.TokenShortfallError{
			Error:     "insufficient token balance",
			Required:  breakdown.Total,
			Available: profile.TokenBalance,
		}, nil
	}

	// Cache probe. First messages always reach the model: a greeting
	// replayed from cache reads as canned.
	cacheKey := s.cache.Key(profile.ID, req.Message, assembled.Digest)
	if !req.IsFirstMessage {
		if cached, ok := s.cache.Get(cacheKey); ok {
			if m := GetMetrics(); m != nil {
				m.RecordCacheHit()
			}
			log.Printf("⚡ [CHAT] Cache hit for user %d", profile.ID)
			return s.finishTurn(ctx, profile, req.Message, cached, "", breakdown, 0)
		}
		if m := GetMetrics(); m != nil {
			m.RecordCacheMiss()
		}
	}

	text, model, billed, err := s.complete(ctx, assembled, req.IsFirstMessage)
	if err != nil {
		if req.IsFirstMessage {
			log.Printf("⚠️ [CHAT] First-message completion failed for user %d: %v (serving fallback greeting)", profile.ID, err)
			return s.finishTurn(ctx, profile, req.Message, fallbackGreeting, "", breakdown, 0)
		}
		if m := GetMetrics(); m != nil {
			m.RecordChatError("completion")
		}
		return nil, nil, fmt.Errorf("completion failed: %w", err)
	}

	if billed <= 0 {
		billed = breakdown.Total
	}
	s.cache.Set(cacheKey, text)

	return s.finishTurn(ctx, profile, req.Message, text, model, breakdown, billed)
}

// complete calls the model with the tier the assembler selected and a
// watchdog timeout sized for the turn type.
func (s *ChatService) complete(ctx context.Context, assembled *AssembledContext, isFirstMessage bool) (text, model string, billed int, err error) {
	timeout := turnCompletionTimeout
	if isFirstMessage {
		timeout = initCompletionTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.completion.Complete(cctx, assembled.Tier, assembled.Messages, chatTemperature, s.cfg.MaxResponseTokens*2)
	if err != nil {
		return "", "", 0, err
	}
	return strings.TrimSpace(result.Text), result.Model, result.Usage.TotalTokens, nil
}

// finishTurn persists the exchange, bills, chunks oversized replies,
// and runs memory triggers. billed == 0 means a free turn (cache hit
// or fallback greeting).
func (s *ChatService) finishTurn(
	ctx context.Context,
	profile *models.UserProfile,
	userMessage, responseText, model string,
	breakdown models.TokenBreakdown,
	billed int,
) (*models.ChatTurnResponse, *models.TokenShortfallError, error) {
	if err := s.history.Append(profile.ID, models.RoleUser, userMessage, "", EstimateTokens(userMessage)); err != nil {
		log.Printf("⚠️ [CHAT] Failed to persist user message for user %d: %v", profile.ID, err)
	}
	if err := s.history.Append(profile.ID, models.RoleAssistant, responseText, model, EstimateTokens(responseText)); err != nil {
		log.Printf("⚠️ [CHAT] Failed to persist assistant message for user %d: %v", profile.ID, err)
	}

	remaining := profile.TokenBalance
	if billed > 0 {
		newBalance, err := s.profiles.DebitTokens(profile.ID, billed)
		if err != nil {
			log.Printf("⚠️ [CHAT] Failed to debit %d tokens for user %d: %v", billed, profile.ID, err)
		} else {
			remaining = newBalance
			profile.TokenBalance = newBalance
		}
	}

	resp := &models.ChatTurnResponse{
		Response:        responseText,
		TokensUsed:      billed,
		RemainingTokens: remaining,
		TokenBreakdown:  breakdown,
		TotalChunks:     1,
		CurrentChunk:    1,
	}

	// Oversized replies are split and served one chunk at a time
	maxChars := s.cfg.MaxResponseTokens * charsPerToken
	if len(responseText) > maxChars {
		if chunked := s.chunkResponse(profile.ID, responseText, maxChars); chunked != nil {
			resp.Response = chunked.Response
			resp.IsPartial = chunked.IsPartial
			resp.TotalChunks = chunked.TotalChunks
			resp.CurrentChunk = chunked.CurrentChunk
			resp.ConversationID = chunked.ConversationID
			resp.NextChunkToken = chunked.NextChunkToken
			resp.PreviewNext = chunked.PreviewNext
		}
	}

	// Synchronous by design: the next turn must observe any summary
	// refresh this turn earned
	s.memory.RunAfterTurn(ctx, profile, userMessage)

	return resp, nil, nil
}

// chunkResponse splits and stores an oversized reply, returning the
// first chunk's serving metadata. Returns nil on storage failure, in
// which case the caller falls back to the full response.
func (s *ChatService) chunkResponse(userID int64, responseText string, maxChars int) *models.ChatTurnResponse {
	pieces := SplitText(responseText, maxChars)
	if len(pieces) < 2 {
		return nil
	}

	rec, err := s.chunks.Store(userID, responseText, pieces)
	if err != nil {
		log.Printf("⚠️ [CHAT] Failed to store chunks for user %d: %v (serving full response)", userID, err)
		return nil
	}

	if m := GetMetrics(); m != nil {
		m.RecordChunkedResponse()
	}

	return &models.ChatTurnResponse{
		Response:       pieces[0],
		IsPartial:      true,
		TotalChunks:    len(pieces),
		CurrentChunk:   1,
		ConversationID: rec.ConversationID,
		NextChunkToken: continuationToken(rec.ConversationID, 2),
		PreviewNext:    FirstSentencePreview(pieces[1]),
	}
}

// Continue serves the next chunk of a previously chunked response.
func (s *ChatService) Continue(ctx context.Context, req models.ContinueRequest) (*models.ChatTurnResponse, error) {
	profile, err := s.profiles.GetByEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("unknown user")
	}

	s.sessions.RecordActivity(profile.ID, time.Now().UTC())

	resp, err := s.chunks.Serve(profile.ID, req.ConversationID, req.ChunkNumber)
	if err != nil {
		return nil, err
	}
	resp.RemainingTokens = profile.TokenBalance
	return resp, nil
}
