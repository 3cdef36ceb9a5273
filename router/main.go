package router

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/config"
	"github.com/docuquery/docuquery/handlers"
	ingest_handlers "github.com/docuquery/docuquery/handlers/ingest"
	query_handlers "github.com/docuquery/docuquery/handlers/query"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/utils/metrics"
	"github.com/docuquery/docuquery/utils/middleware"
)

// Deps carries the wired services the routes depend on
type Deps struct {
	Config   *config.EnvironmentVariable
	Orch     *services.Orchestrator
	Pipeline *services.Pipeline
	Factory  *services.RetrieverFactory
	Answerer *services.Answerer
	Vectors  *services.VectorStore
	SSE      *services.SSEManager
	Registry *metrics.Registry
	Logger   *slog.Logger
}

// SetupRoutes wires middleware and all routes onto the Fiber app
func SetupRoutes(app *fiber.App, deps Deps) {
	cfg := deps.Config

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    cfg.CORS_ORIGINS,
		RateLimitRequests: cfg.RATE_LIMIT_REQUESTS,
		RateLimitWindow:   cfg.RATE_LIMIT_WINDOW,
	})
	app.Use(middleware.WithTimeout(cfg.REQUEST_TIMEOUT))

	// the stream token gate is disabled when no secret is configured
	var streamAuth middleware.TokenValidator
	if cfg.STREAM_TOKEN_SECRET != "" {
		streamAuth = middleware.JWTValidator(cfg.STREAM_TOKEN_SECRET)
	}

	// streams bypass the general request limiter, so they get their own
	// per-IP connection cap
	sseLimiter := middleware.NewSSERateLimiter(5, 60*time.Second)

	healthHandler := handlers.NewHealthHandler(deps.Orch, deps.Vectors)
	metricsHandler := handlers.NewMetricsHandler(deps.Registry)
	ingestHandler := ingest_handlers.NewHandler(deps.Orch, deps.Pipeline, cfg.JOB_TIMEOUT_SECONDS, cfg.MAX_RETRIES, deps.Logger)
	streamHandler := ingest_handlers.NewStreamHandler(deps.Orch, deps.SSE, deps.Logger)
	queryHandler := query_handlers.NewHandler(deps.Factory, deps.Answerer, deps.Logger)

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)
	app.Get("/live", healthHandler.Live)
	app.Get("/ready", healthHandler.Ready)
	app.Get("/metrics", metricsHandler.Snapshot)

	app.Post("/ingest", ingestHandler.Start)
	app.Get("/ingest/jobs/active", ingestHandler.Active)
	app.Get("/ingest/:job_id/status", ingestHandler.Status)
	app.Get("/ingest/:job_id/stream", sseLimiter.Handler(), middleware.RequireBearer(streamAuth), streamHandler.Stream)
	app.Delete("/ingest/:job_id", ingestHandler.Delete)

	app.Post("/query", queryHandler.Ask)
	app.Get("/query/stream", sseLimiter.Handler(), queryHandler.AskStream)
	app.Get("/query/retrievers", queryHandler.Retrievers)
}
