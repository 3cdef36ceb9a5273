package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/utils/metrics"
	"github.com/docuquery/docuquery/utils/response"
)

// MetricsHandler serves the metrics snapshot
type MetricsHandler struct {
	registry *metrics.Registry
}

// NewMetricsHandler creates the metrics handler
func NewMetricsHandler(registry *metrics.Registry) *MetricsHandler {
	return &MetricsHandler{registry: registry}
}

// Snapshot handles GET /metrics. The default exporter is JSON; pass
// ?format=text for the Prometheus text format.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	if c.Query("format") == "text" {
		c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.SendString(h.registry.RenderText())
	}
	return response.OK(c, h.registry.Snapshot())
}
