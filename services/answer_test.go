package services

import (
	"strings"
	"testing"
	"time"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/metrics"
)

func newTestAnswerer() (*Answerer, *metrics.Registry) {
	registry := metrics.New()
	llm := NewLLMClient(LLMConfig{BaseURL: "http://unused.invalid", Model: "test"})
	return NewAnswerer(llm, 10, time.Minute, registry, nil), registry
}

func TestCacheKeyNormalization(t *testing.T) {
	a := CacheKey("  What is Go?  ", "hybrid", 5)
	b := CacheKey("what is go?", "hybrid", 5)
	if a != b {
		t.Error("case and surrounding whitespace must not change the key")
	}

	if CacheKey("q", "hybrid", 5) == CacheKey("q", "dense", 5) {
		t.Error("retriever type must be part of the key")
	}
	if CacheKey("q", "hybrid", 5) == CacheKey("q", "hybrid", 10) {
		t.Error("top_k must be part of the key")
	}
}

func TestCacheHitReturnsStoredResponse(t *testing.T) {
	answerer, registry := newTestAnswerer()

	resp := model.QueryResponse{
		Answer:        "cached answer",
		RetrieverUsed: "hybrid",
		Sources:       []model.RetrievalResult{{Text: "src", Score: 1}},
	}
	answerer.StoreResponse("q", "hybrid", 5, resp)

	got, ok := answerer.CachedResponse("q", "hybrid", 5)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Answer != resp.Answer || len(got.Sources) != 1 {
		t.Errorf("cached response mutated: %+v", got)
	}
	if registry.Counter("query_cache_hits_total").Value() != 1 {
		t.Error("hit counter not incremented")
	}

	if _, ok := answerer.CachedResponse("q", "dense", 5); ok {
		t.Error("different retriever must miss")
	}
	if registry.Counter("query_cache_misses_total").Value() != 1 {
		t.Error("miss counter not incremented")
	}
}

func TestBuildPromptLimitsSources(t *testing.T) {
	long := strings.Repeat("x", 900)
	sources := make([]model.RetrievalResult, 8)
	for i := range sources {
		sources[i] = model.RetrievalResult{Text: long, Score: float64(8 - i)}
	}

	prompt := buildPrompt("what is x?", sources)

	if strings.Count(prompt, "[") != maxPromptSources {
		t.Errorf("expected %d enumerated sources", maxPromptSources)
	}
	if strings.Contains(prompt, strings.Repeat("x", maxSourceChars+1)) {
		t.Error("source text not truncated to the per-source limit")
	}
	if !strings.Contains(prompt, "Question: what is x?") {
		t.Error("question missing from prompt")
	}
	if !strings.Contains(prompt, "refuse") {
		t.Error("refusal instruction missing")
	}
}
