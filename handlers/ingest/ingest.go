package ingest

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/utils/response"
	"github.com/docuquery/docuquery/utils/validation"
)

// Handler serves the ingestion endpoints
type Handler struct {
	orch       *services.Orchestrator
	pipeline   *services.Pipeline
	validator  *validation.Validator
	logger     *slog.Logger
	jobTimeout int
	maxRetries int
}

// NewHandler creates the ingestion handler
func NewHandler(orch *services.Orchestrator, pipeline *services.Pipeline, jobTimeout, maxRetries int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orch:       orch,
		pipeline:   pipeline,
		validator:  validation.NewValidator(),
		logger:     logger.With("component", "ingest_handler"),
		jobTimeout: jobTimeout,
		maxRetries: maxRetries,
	}
}

// Start handles POST /ingest: admit a job and launch the pipeline worker
func (h *Handler) Start(c *fiber.Ctx) error {
	var req model.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.FormatValidationErrors(err))
	}
	if services.IsURL(req.Content) {
		if err := services.ValidateURL(req.Content); err != nil {
			return response.BadRequest(c, "URL not allowed")
		}
	}

	job, err := h.orch.Create(c.UserContext(), h.jobTimeout, h.maxRetries, req.Metadata)
	if err != nil {
		if errors.Is(err, model.ErrAdmissionDenied) {
			return response.TooManyRequests(c, "Too many concurrent ingestion jobs")
		}
		h.logger.Error("job creation failed", "err", err)
		return response.InternalServerError(c, "Failed to create ingestion job")
	}

	h.pipeline.Start(job, req)

	return response.OK(c, model.IngestResponse{
		Status:        "accepted",
		Message:       "Ingestion started",
		JobID:         job.JobID,
		ChunksCreated: 0,
	})
}

// Status handles GET /ingest/:job_id/status
func (h *Handler) Status(c *fiber.Ctx) error {
	job, err := h.orch.Get(c.UserContext(), c.Params("job_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return response.NotFound(c, "Job not found or expired")
		}
		return response.InternalServerError(c, "Failed to read job state")
	}
	return response.OK(c, job)
}

// Active handles GET /ingest/jobs/active
func (h *Handler) Active(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	jobs, err := h.orch.ListActive(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("active job listing failed", "err", err)
		return response.InternalServerError(c, "Failed to list active jobs")
	}
	return response.OK(c, model.ActiveJobsResponse{Jobs: jobs, Total: len(jobs)})
}

// Delete handles DELETE /ingest/:job_id
func (h *Handler) Delete(c *fiber.Ctx) error {
	ok, err := h.orch.Cleanup(c.UserContext(), c.Params("job_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return response.NotFound(c, "Job not found or expired")
		}
		return response.InternalServerError(c, "Failed to clean up job")
	}
	return response.OK(c, fiber.Map{"deleted": ok})
}
