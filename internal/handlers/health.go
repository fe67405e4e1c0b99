package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"thrivecoach/internal/database"
	"thrivecoach/internal/services"
)

// HealthHandler reports liveness plus dependency status
type HealthHandler struct {
	db    *database.DB
	redis *services.RedisService // optional
}

// NewHealthHandler creates a health handler
func NewHealthHandler(db *database.DB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Handle processes GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			// Redis is advisory; its loss degrades, not kills
			checks["redis"] = "down: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "healthy"
	code := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
