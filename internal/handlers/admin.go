package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"thrivecoach/internal/models"
	"thrivecoach/internal/services"
)

// AdminHandler exposes the operational maintenance endpoints. All
// routes behind it require the admin bearer token.
type AdminHandler struct {
	pruner *services.HistoryPruner
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(pruner *services.HistoryPruner) *AdminHandler {
	return &AdminHandler{pruner: pruner}
}

// HandleCleanup processes POST /api/admin/cleanup. The action field
// selects stats, a single-user prune, or a paced bulk run.
func (h *AdminHandler) HandleCleanup(c *fiber.Ctx) error {
	var req models.AdminCleanupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	switch req.Action {
	case "stats":
		stats, err := h.pruner.Stats()
		if err != nil {
			log.Printf("❌ [ADMIN] Stats failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to compute stats",
			})
		}
		return c.JSON(stats)

	case "cleanup_user":
		if req.UserID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id is required for cleanup_user",
			})
		}
		result := h.pruner.CleanupUser(req.UserID, req.KeepMessages, req.Force)
		if !result.Success {
			log.Printf("⚠️ [ADMIN] Cleanup refused for user %d: %s", req.UserID, result.Reason)
		}
		return c.JSON(result)

	case "bulk_cleanup":
		result, err := h.pruner.BulkCleanup(c.Context(), req.KeepMessages, req.MaxUsers)
		if err != nil {
			log.Printf("❌ [ADMIN] Bulk cleanup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Bulk cleanup failed",
			})
		}
		return c.JSON(result)

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown action (expected stats, cleanup_user or bulk_cleanup)",
		})
	}
}
