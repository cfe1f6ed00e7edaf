package handler

import (
	"context"
	"time"

	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

const readyPingTimeout = 2 * time.Second

// HealthHandler backs the liveness and readiness probes. Liveness reports
// process-level facts (uptime, connected websocket clients); readiness
// additionally requires the database, since every conversation operation
// needs it.
type HealthHandler struct {
	pool    *pgxpool.Pool
	hub     *service.Hub
	started time.Time
}

func NewHealthHandler(pool *pgxpool.Pool, hub *service.Hub) *HealthHandler {
	return &HealthHandler{pool: pool, hub: hub, started: time.Now()}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"clients": h.hub.OnlineCount(),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyPingTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"error":  "database unreachable",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
