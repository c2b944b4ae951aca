package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports service health
type HealthHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Events events.Publisher
	Log    *zap.Logger
}

// Health handles GET /api/health
// @Summary Health check
// @Description Database, authorizer and broker reachability
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Config, h.DB, h.Events, h.Log)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
