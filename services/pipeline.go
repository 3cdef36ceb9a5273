package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/metrics"
)

// Stage progress checkpoints published between pipeline stages
const (
	progressFetch = 10
	progressChunk = 20
	progressEmbed = 40
	progressStore = 70
	progressIndex = 85
	progressDone  = 100
)

// Pipeline runs one ingestion job end to end: fetch, sanitize, chunk,
// embed, store vectors, extend the lexical index. Stage transitions are
// published through the orchestrator so subscribers see live progress.
type Pipeline struct {
	orch     *Orchestrator
	fetcher  *Fetcher
	pdf      *PDFExtractor
	chunker  *Chunker
	embedder EmbeddingProvider
	vectors  *VectorStore
	lexical  *LexicalIndex
	archive  *Archive // nil when archival is disabled
	registry *metrics.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewPipeline wires the ingestion stages together
func NewPipeline(
	orch *Orchestrator,
	fetcher *Fetcher,
	pdf *PDFExtractor,
	chunker *Chunker,
	embedder EmbeddingProvider,
	vectors *VectorStore,
	lexical *LexicalIndex,
	archive *Archive,
	registry *metrics.Registry,
	logger *slog.Logger,
) *Pipeline {
	if registry == nil {
		registry = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		orch:     orch,
		fetcher:  fetcher,
		pdf:      pdf,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		archive:  archive,
		registry: registry,
		logger:   logger.With("component", "pipeline"),
		tracer:   otel.Tracer("pipeline"),
	}
}

// Start launches the worker for a created job. It returns immediately;
// outcomes are observable through the job's status and event stream.
func (p *Pipeline) Start(job *model.Job, req model.IngestRequest) {
	go p.run(job, req)
}

func (p *Pipeline) run(job *model.Job, req model.IngestRequest) {
	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID),
			attribute.String("document_type", string(req.DocumentType)),
		))
	defer span.End()

	p.registry.Gauge("pipeline_jobs_in_flight").Inc()
	defer p.registry.Gauge("pipeline_jobs_in_flight").Dec()

	start := time.Now()
	chunksCreated, err := p.execute(ctx, job, req)
	p.registry.Histogram("pipeline_duration_seconds", nil).Since(start)

	if err != nil {
		message := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			message = "timeout"
		}
		p.terminate(job.JobID, model.JobStatusError, model.StageError, message, chunksCreated)
		p.registry.Counter(metrics.WithLabels("pipeline_jobs_total",
			"status", "failed", "document_type", string(req.DocumentType))).Inc()
		p.logger.Error("ingestion failed", "job_id", job.JobID, "err", err)
		return
	}

	p.terminate(job.JobID, model.JobStatusSuccess, model.StageCompleted, "Ingestion complete", chunksCreated)
	p.registry.Counter(metrics.WithLabels("pipeline_jobs_total",
		"status", "success", "document_type", string(req.DocumentType))).Inc()
	p.logger.Info("ingestion complete", "job_id", job.JobID, "chunks", chunksCreated, "took", time.Since(start))
}

// execute runs the staged work and returns the number of chunks created
func (p *Pipeline) execute(ctx context.Context, job *model.Job, req model.IngestRequest) (int, error) {
	// Fetch
	if err := p.progress(ctx, job.JobID, model.StageFetching, progressFetch, "Fetching content"); err != nil {
		return 0, err
	}

	raw, err := p.fetchStage(ctx, job, req)
	if err != nil {
		return 0, err
	}

	if p.archive != nil {
		// best-effort: archival failure never fails the job
		if err := p.archive.Store(ctx, "raw/"+job.JobID, raw, contentTypeFor(req.DocumentType)); err != nil {
			p.logger.Warn("raw archive failed", "job_id", job.JobID, "err", err)
		}
	}

	// Sanitize + Chunk
	if err := p.progress(ctx, job.JobID, model.StageChunking, progressChunk, "Chunking content"); err != nil {
		return 0, err
	}

	chunks, err := p.chunkStage(ctx, raw, req.DocumentType)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, model.ErrNoChunks
	}

	// Embed
	if err := p.progress(ctx, job.JobID, model.StageEmbedding, progressEmbed,
		fmt.Sprintf("Embedding %d chunks", len(chunks))); err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", model.ErrEmbedding, len(vectors), len(chunks))
	}
	for _, vec := range vectors {
		Normalize(vec)
	}

	// Store
	if err := p.progress(ctx, job.JobID, model.StageStoring, progressStore, "Storing vectors"); err != nil {
		return 0, err
	}

	if err := p.vectors.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}
	records := make([]model.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = model.VectorRecord{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: model.VectorPayload{
				Text:            c.Text,
				Page:            c.Page,
				ChunkIndex:      c.ChunkIndex,
				Title:           c.Title,
				Section:         c.Section,
				HasTitleContext: c.HasTitleContext,
			},
		}
	}
	if err := p.vectors.Upsert(ctx, records); err != nil {
		return 0, err
	}

	// Index
	if err := p.progress(ctx, job.JobID, model.StageIndexing, progressIndex, "Building lexical index"); err != nil {
		return 0, err
	}
	p.lexical.AddDocuments(chunks)

	return len(chunks), nil
}

// fetchStage resolves the request content to raw document bytes
func (p *Pipeline) fetchStage(ctx context.Context, job *model.Job, req model.IngestRequest) ([]byte, error) {
	if IsURL(req.Content) {
		return p.fetcher.Fetch(ctx, req.Content, job.MaxRetries)
	}
	if req.DocumentType == model.DocumentTypePDF {
		// inline PDFs arrive base64-encoded; fall back to raw bytes for
		// clients that post the binary directly
		if decoded, err := base64.StdEncoding.DecodeString(req.Content); err == nil {
			return decoded, nil
		}
	}
	return []byte(req.Content), nil
}

// chunkStage sanitizes and segments the document
func (p *Pipeline) chunkStage(ctx context.Context, raw []byte, docType model.DocumentType) ([]model.SemanticChunk, error) {
	_, span := p.tracer.Start(ctx, "chunk")
	defer span.End()

	if docType == model.DocumentTypePDF {
		pages, err := p.pdf.ExtractPages(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrEmptyContent, err)
		}
		return p.chunker.ChunkPages(pages), nil
	}

	content := string(raw)
	if strings.TrimSpace(Clean(content, docType)) == "" {
		return nil, model.ErrEmptyContent
	}
	return p.chunker.Chunk(content, docType), nil
}

// progress publishes a stage transition; the first one also flips the job
// from queued to running.
func (p *Pipeline) progress(ctx context.Context, jobID, stage string, progress float64, message string) error {
	status := model.JobStatusRunning
	_, err := p.orch.Update(ctx, jobID, model.JobPatch{
		Status:   &status,
		Stage:    &stage,
		Progress: &progress,
		Message:  &message,
	})
	return err
}

// terminate writes the terminal state; progress only moves to 100 on success
func (p *Pipeline) terminate(jobID string, status model.JobStatus, stage, message string, chunks int) {
	// terminal write uses a fresh context so it survives job-timeout expiry
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	patch := model.JobPatch{
		Status:        &status,
		Stage:         &stage,
		Message:       &message,
		ChunksCreated: &chunks,
	}
	if status == model.JobStatusSuccess {
		done := float64(progressDone)
		patch.Progress = &done
	}
	if _, err := p.orch.Update(ctx, jobID, patch); err != nil {
		p.logger.Error("failed to write terminal state", "job_id", jobID, "err", err)
	}
}

func contentTypeFor(docType model.DocumentType) string {
	switch docType {
	case model.DocumentTypeHTML:
		return "text/html"
	case model.DocumentTypeMarkdown:
		return "text/markdown"
	case model.DocumentTypePDF:
		return "application/pdf"
	default:
		return "text/plain"
	}
}
