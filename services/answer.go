package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/metrics"
)

// answerErrorMarker is returned verbatim when the LLM provider fails so
// callers never receive a fabricated answer.
const answerErrorMarker = "Error generating answer. Please try again later."

const answerSystemPrompt = `You are a careful assistant answering questions about a document collection.
Answer ONLY from the provided sources. If the sources do not contain the
answer, say "I cannot answer this from the indexed documents."`

const (
	maxPromptSources = 5
	maxSourceChars   = 500
)

// Answerer composes source-grounded answers and caches full responses
// keyed by (question, retriever, top_k).
type Answerer struct {
	llm      *LLMClient
	cache    *expirable.LRU[string, model.QueryResponse]
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewAnswerer creates an answer composer with a TTL-LRU response cache
func NewAnswerer(llm *LLMClient, cacheSize int, cacheTTL time.Duration, registry *metrics.Registry, logger *slog.Logger) *Answerer {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	if cacheTTL <= 0 {
		cacheTTL = 300 * time.Second
	}
	if registry == nil {
		registry = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		llm:      llm,
		cache:    expirable.NewLRU[string, model.QueryResponse](cacheSize, nil, cacheTTL),
		registry: registry,
		logger:   logger.With("component", "answerer"),
	}
}

// CacheKey derives the cache key for a query
func CacheKey(question, retrieverType string, topK int) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", normalized, retrieverType, topK)))
	return hex.EncodeToString(sum[:])
}

// CachedResponse looks up a prior response; a hit is byte-identical to the
// original miss within the TTL.
func (a *Answerer) CachedResponse(question, retrieverType string, topK int) (model.QueryResponse, bool) {
	resp, ok := a.cache.Get(CacheKey(question, retrieverType, topK))
	if ok {
		a.registry.Counter("query_cache_hits_total").Inc()
	} else {
		a.registry.Counter("query_cache_misses_total").Inc()
	}
	return resp, ok
}

// StoreResponse caches a successful response
func (a *Answerer) StoreResponse(question, retrieverType string, topK int, resp model.QueryResponse) {
	a.cache.Add(CacheKey(question, retrieverType, topK), resp)
}

// buildPrompt enumerates the top sources with scores, then the question
// and the grounding instruction.
func buildPrompt(question string, sources []model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")

	limit := len(sources)
	if limit > maxPromptSources {
		limit = maxPromptSources
	}
	for i := 0; i < limit; i++ {
		text := sources[i].Text
		if len(text) > maxSourceChars {
			text = text[:maxSourceChars]
		}
		fmt.Fprintf(&b, "[%d] (score %.3f) %s\n\n", i+1, sources[i].Score, text)
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer using only the sources above. If they are insufficient, refuse.")
	return b.String()
}

// Compose calls the LLM with the source-grounded prompt. Provider failures
// yield the error marker, never a fabricated answer; ok is false so the
// caller skips caching.
func (a *Answerer) Compose(ctx context.Context, question string, sources []model.RetrievalResult) (answer string, ok bool) {
	prompt := buildPrompt(question, sources)

	start := time.Now()
	text, tokens, err := a.llm.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		a.logger.Error("llm completion failed", "err", err)
		a.registry.Counter("llm_errors_total").Inc()
		return answerErrorMarker, false
	}

	a.registry.Histogram("llm_duration_seconds", nil).Since(start)
	a.logger.Info("answer composed",
		"prompt_len", len(prompt),
		"answer_len", len(text),
		"tokens_used", tokens,
	)
	return text, true
}
