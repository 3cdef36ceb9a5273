package app

import (
	"context"
	"fmt"
	"time"

	"github.com/docuquery/docuquery/api"
	"github.com/docuquery/docuquery/config"
	"github.com/docuquery/docuquery/router"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/services/cron"
	"github.com/docuquery/docuquery/utils/cache"
	"github.com/docuquery/docuquery/utils/metrics"
	"github.com/docuquery/docuquery/utils/obs"
)

// SetupAndRunServer loads configuration, wires every service and starts
// the HTTP server. It blocks until the server exits.
func SetupAndRunServer() error {
	if err := config.LoadENV(); err != nil {
		return err
	}

	cfg, err := config.Get()
	if err != nil {
		return err
	}

	logger := obs.SetupLogging(cfg.LOG_STRUCTURED)

	shutdownTracing, err := obs.InitTracing(context.Background(), obs.TracingConfig{
		Endpoint:    cfg.OTEL_EXPORTER_OTLP_ENDPOINT,
		ServiceName: cfg.OTEL_SERVICE_NAME,
		SampleRate:  cfg.OTEL_SAMPLE_RATE,
	})
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	}
	if shutdownTracing != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(ctx)
		}()
	}

	// Job store (Redis)
	redisCache, err := cache.NewRedisCache(cfg.STORE_URL)
	if err != nil {
		logger.Error("check whether Redis is reachable", "url", cfg.STORE_URL)
		return err
	}
	defer redisCache.Close()

	// Vector store (Qdrant)
	vectors, err := services.NewVectorStore(cfg.VECTOR_STORE_URL, cfg.COLLECTION_NAME)
	if err != nil {
		return err
	}
	defer vectors.Close()

	// Providers
	embedder, err := services.NewEmbeddingProvider(services.EmbeddingConfig{
		Provider: cfg.EMBEDDING_PROVIDER,
		Model:    cfg.EMBEDDING_MODEL,
		BaseURL:  cfg.EMBEDDING_URL,
		APIKey:   cfg.OPENAI_API_KEY,
	})
	if err != nil {
		return err
	}
	llm := services.NewLLMClient(services.LLMConfig{
		BaseURL:     cfg.LLM_URL,
		APIKey:      cfg.OPENAI_API_KEY,
		Model:       cfg.LLM_MODEL,
		Temperature: cfg.LLM_TEMPERATURE,
		MaxTokens:   cfg.LLM_MAX_TOKENS,
	})
	scorer := services.NewHTTPCrossEncoder(cfg.RERANK_URL, cfg.RERANK_MODEL)

	archive, err := services.NewArchive(services.ArchiveConfig{
		Bucket:    cfg.ARCHIVE_BUCKET,
		Region:    cfg.ARCHIVE_REGION,
		Endpoint:  cfg.ARCHIVE_ENDPOINT,
		AccessKey: cfg.ARCHIVE_ACCESS_KEY,
		SecretKey: cfg.ARCHIVE_SECRET_KEY,
	}, logger)
	if err != nil {
		logger.Warn("raw-document archive disabled", "err", err)
	}

	// Core services
	registry := metrics.New()
	store := services.NewJobStore(redisCache, nil, logger)
	orch := services.NewOrchestrator(store, cfg.MAX_CONCURRENT_JOBS, registry, logger)
	lexical := services.NewLexicalIndex()
	chunker := services.NewChunker(services.ChunkOptions{
		ChunkSize:           cfg.CHUNK_SIZE,
		ChunkOverlap:        cfg.CHUNK_OVERLAP,
		RespectBoundaries:   true,
		EnableTitleBubbling: true,
	})
	fetcher := services.NewFetcher(30*time.Second, logger)
	pdfExtractor := services.NewPDFExtractor(logger)
	pipeline := services.NewPipeline(orch, fetcher, pdfExtractor, chunker, embedder, vectors, lexical, archive, registry, logger)
	factory := services.NewRetrieverFactory(embedder, vectors, lexical, scorer, cfg.RERANK_ENABLED, logger)
	answerer := services.NewAnswerer(llm, cfg.QUERY_CACHE_SIZE, cfg.QUERY_CACHE_TTL, registry, logger)
	sseManager := services.NewSSEManager(cfg.HEARTBEAT_INTERVAL, logger)

	// Scheduled maintenance
	cronManager := cron.NewManager(orch, sseManager, logger)
	if err := cronManager.Start(); err != nil {
		logger.Warn("failed to start cron jobs", "err", err)
	}
	defer cronManager.Stop()

	// HTTP
	server := api.NewAPIServer(fmt.Sprintf(":%d", cfg.PORT), cfg.MAX_REQUEST_SIZE, cfg.REQUEST_TIMEOUT+5*time.Second)
	router.SetupRoutes(server.GetEngine(), router.Deps{
		Config:   cfg,
		Orch:     orch,
		Pipeline: pipeline,
		Factory:  factory,
		Answerer: answerer,
		Vectors:  vectors,
		SSE:      sseManager,
		Registry: registry,
		Logger:   logger,
	})

	return server.Run()
}
