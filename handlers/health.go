package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/config"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/utils/response"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	orch    *services.Orchestrator
	vectors *services.VectorStore
}

// NewHealthHandler creates the probe handler
func NewHealthHandler(orch *services.Orchestrator, vectors *services.VectorStore) *HealthHandler {
	return &HealthHandler{orch: orch, vectors: vectors}
}

// Root handles GET / with a service descriptor
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"service": "docuquery",
		"version": config.ServiceVersion,
		"docs":    "/query, /ingest, /health",
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status":  "ok",
		"version": config.ServiceVersion,
	})
}

// Live handles GET /live
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"status": "alive"})
}

// Ready handles GET /ready, aggregating dependency checks
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	store := h.orch.Health(ctx)
	checks["store"] = store
	if store.Status != "ok" {
		ready = false
	}

	if err := h.vectors.Healthy(ctx); err != nil {
		checks["vector_store"] = fiber.Map{"status": "unreachable", "error": err.Error()}
		ready = false
	} else {
		checks["vector_store"] = fiber.Map{"status": "ok"}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": checks,
		})
	}
	return response.OK(c, fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}
