package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"thrivecoach/internal/models"
	"thrivecoach/internal/services"
)

// ChatHandler exposes the conversational endpoints
type ChatHandler struct {
	chat *services.ChatService
}

// NewChatHandler creates a chat handler
func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// HandleTurn processes POST /api/chat
func (h *ChatHandler) HandleTurn(c *fiber.Ctx) error {
	var req models.ChatTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Message = strings.TrimSpace(req.Message)
	if req.Email == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email and message are required",
		})
	}

	resp, shortfall, err := h.chat.ProcessTurn(c.Context(), req)
	if err != nil {
		log.Printf("❌ [CHAT] Turn failed for %s: %v", req.Email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}
	if shortfall != nil {
		return c.Status(fiber.StatusForbidden).JSON(shortfall)
	}

	return c.JSON(resp)
}

// HandleContinue processes POST /api/chat/continue
func (h *ChatHandler) HandleContinue(c *fiber.Ctx) error {
	var req models.ContinueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.ConversationID == "" || req.ChunkNumber < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email, conversationId and chunkNumber are required",
		})
	}

	resp, err := h.chat.Continue(c.Context(), req)
	if err != nil {
		log.Printf("⚠️ [CHAT] Continuation failed for %s (conversation %s): %v", req.Email, req.ConversationID, err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Chunk not available",
		})
	}

	return c.JSON(resp)
}
