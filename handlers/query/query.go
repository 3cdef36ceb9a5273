package query

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/utils/response"
	"github.com/docuquery/docuquery/utils/sse"
	"github.com/docuquery/docuquery/utils/validation"
)

const (
	defaultRetriever = "hybrid"
	defaultTopK      = 5
	maxTopK          = 20
)

// Handler serves the question-answering endpoints
type Handler struct {
	factory   *services.RetrieverFactory
	answerer  *services.Answerer
	validator *validation.Validator
	logger    *slog.Logger
}

// NewHandler creates the query handler
func NewHandler(factory *services.RetrieverFactory, answerer *services.Answerer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		factory:   factory,
		answerer:  answerer,
		validator: validation.NewValidator(),
		logger:    logger.With("component", "query_handler"),
	}
}

func clampTopK(k int) int {
	if k < 1 {
		return 1
	}
	if k > maxTopK {
		return maxTopK
	}
	return k
}

// Ask handles POST /query: retrieve, compose, cache
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req model.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.FormatValidationErrors(err))
	}

	retrieverName := c.Query("retriever", defaultRetriever)
	topK := clampTopK(c.QueryInt("top_k", defaultTopK))

	if cached, ok := h.answerer.CachedResponse(req.Question, retrieverName, topK); ok {
		return response.OK(c, cached)
	}

	resp, cacheable, err := h.answer(c.UserContext(), req.Question, retrieverName, topK)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return response.BadRequest(c, "Unknown retriever")
		}
		h.logger.Error("query failed", "err", err)
		return response.ErrorWithDetail(c, fiber.StatusInternalServerError, "Query failed", "retrieval error")
	}

	if cacheable {
		h.answerer.StoreResponse(req.Question, retrieverName, topK, resp)
	}
	return response.OK(c, resp)
}

// answer runs retrieval and composition. cacheable is false when the
// provider failed and the answer is the error marker.
func (h *Handler) answer(ctx context.Context, question, retrieverName string, topK int) (model.QueryResponse, bool, error) {
	retriever, err := h.factory.Get(retrieverName)
	if err != nil {
		return model.QueryResponse{}, false, err
	}

	start := time.Now()
	sources, err := retriever.Search(ctx, question, topK)
	if err != nil {
		return model.QueryResponse{}, false, err
	}

	answer, ok := h.answerer.Compose(ctx, question, sources)

	if sources == nil {
		sources = []model.RetrievalResult{}
	}
	resp := model.QueryResponse{
		Answer:        answer,
		Sources:       sources,
		RetrieverUsed: retriever.Name(),
		Metadata: map[string]any{
			"top_k":       topK,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	}
	return resp, ok, nil
}

// AskStream handles GET /query/stream: the same flow delivered as SSE,
// with sources first, then answer deltas, then done.
func (h *Handler) AskStream(c *fiber.Ctx) error {
	question := strings.TrimSpace(c.Query("question"))
	if question == "" {
		return response.BadRequest(c, "question query parameter is required")
	}
	retrieverName := c.Query("retriever", defaultRetriever)
	topK := clampTopK(c.QueryInt("top_k", defaultTopK))

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		resp, cacheable, err := h.cachedOrAnswer(ctx, question, retrieverName, topK)
		if err != nil {
			sse.SendError(w, errors.New("query failed"))
			return
		}
		if cacheable {
			h.answerer.StoreResponse(question, retrieverName, topK, resp)
		}

		if err := sse.Send(w, sse.Event{Event: "sources", Data: fiber.Map{
			"sources":        resp.Sources,
			"retriever_used": resp.RetrieverUsed,
		}}); err != nil {
			return
		}

		for _, delta := range splitDeltas(resp.Answer, 12) {
			if err := sse.Send(w, sse.Event{Event: "answer", Data: fiber.Map{"delta": delta}}); err != nil {
				return
			}
		}

		sse.Send(w, sse.Event{Event: "done", Data: fiber.Map{"metadata": resp.Metadata}})
	})

	return nil
}

func (h *Handler) cachedOrAnswer(ctx context.Context, question, retrieverName string, topK int) (model.QueryResponse, bool, error) {
	if cached, ok := h.answerer.CachedResponse(question, retrieverName, topK); ok {
		return cached, false, nil
	}
	return h.answer(ctx, question, retrieverName, topK)
}

// splitDeltas breaks the answer into word groups for chunked delivery
func splitDeltas(answer string, wordsPerDelta int) []string {
	words := strings.Fields(answer)
	if len(words) == 0 {
		return []string{answer}
	}
	var out []string
	for start := 0; start < len(words); start += wordsPerDelta {
		end := start + wordsPerDelta
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

// Retrievers handles GET /query/retrievers
func (h *Handler) Retrievers(c *fiber.Ctx) error {
	descriptions := map[string]string{
		"dense":         "Vector similarity over embedded chunks (cosine)",
		"bm25":          "Lexical BM25 over the in-process index",
		"hybrid":        "Weighted fusion of dense and BM25 scores",
		"dense_rerank":  "Dense retrieval re-scored by a cross-encoder",
		"bm25_rerank":   "BM25 retrieval re-scored by a cross-encoder",
		"hybrid_rerank": "Hybrid retrieval re-scored by a cross-encoder",
	}

	names := h.factory.Names()
	list := make([]fiber.Map, 0, len(names))
	for _, name := range names {
		list = append(list, fiber.Map{
			"name":        name,
			"description": descriptions[name],
		})
	}
	return response.OK(c, fiber.Map{
		"retrievers":     list,
		"default":        defaultRetriever,
		"rerank_enabled": h.factory.RerankEnabled(),
	})
}
