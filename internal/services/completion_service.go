package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"thrivecoach/internal/config"
	"thrivecoach/internal/models"
)

// Model tiers. The assembler picks one per turn; the completion service
// maps it to a concrete model name from config.
const (
	TierLight = "light"
	TierHeavy = "heavy"
)

// CompletionService is the adapter around the language-model HTTP API.
// Provider responses arrive with text under different optional fields
// depending on endpoint version; this adapter resolves them once into
// models.CompletionResult so the rest of the pipeline consumes a single
// well-typed shape.
type CompletionService struct {
	baseURL    string
	apiKey     string
	lightModel string
	heavyModel string
	client     *http.Client
}

// NewCompletionService creates a completion service from config
func NewCompletionService(cfg *config.Config) *CompletionService {
	return &CompletionService{
		baseURL:    strings.TrimRight(cfg.CompletionBaseURL, "/"),
		apiKey:     cfg.CompletionAPIKey,
		lightModel: cfg.LightModel,
		heavyModel: cfg.HeavyModel,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// ModelForTier resolves a tier name to the configured model
func (s *CompletionService) ModelForTier(tier string) string {
	if tier == TierHeavy {
		return s.heavyModel
	}
	return s.lightModel
}

// Complete sends a chat completion request and returns the resolved
// result. The caller's context bounds the call; temperature and
// maxTokens pass through unchanged.
func (s *CompletionService) Complete(ctx context.Context, tier string, messages []models.PromptMessage, temperature float64, maxTokens int) (*models.CompletionResult, error) {
	model := s.ModelForTier(tier)

	reqBody, err := json.Marshal(models.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Stream:      false,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [COMPLETION] API error (status %d): %s", resp.StatusCode, truncateForLog(string(body), 500))
		return nil, fmt.Errorf("completion API error (status %d)", resp.StatusCode)
	}

	return resolveResponse(body, model)
}

// resolveResponse maps the provider's duck-typed wire shape to the one
// struct the pipeline consumes. Chat endpoints put text under
// choices[].message.content, legacy completion endpoints under
// choices[].text; some providers use a top-level response field.
func resolveResponse(body []byte, model string) (*models.CompletionResult, error) {
	var wire struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Response string                 `json:"response"`
		Usage    models.CompletionUsage `json:"usage"`
	}

	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}

	var text string
	switch {
	case len(wire.Choices) > 0 && wire.Choices[0].Message.Content != "":
		text = wire.Choices[0].Message.Content
	case len(wire.Choices) > 0 && wire.Choices[0].Text != "":
		text = wire.Choices[0].Text
	case wire.Response != "":
		text = wire.Response
	default:
		return nil, fmt.Errorf("completion response contained no text")
	}

	resolvedModel := wire.Model
	if resolvedModel == "" {
		resolvedModel = model
	}

	return &models.CompletionResult{
		Text:  strings.TrimSpace(text),
		Model: resolvedModel,
		Usage: wire.Usage,
	}, nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
