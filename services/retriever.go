package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/docuquery/docuquery/model"
)

// Retriever is the capability interface all retrieval strategies satisfy
type Retriever interface {
	Name() string
	Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error)
}

// Hybrid fusion defaults
const (
	DefaultDenseWeight = 0.7
	DefaultBM25Weight  = 0.3
)

// DenseRetriever embeds the query once and runs vector-store ANN search
type DenseRetriever struct {
	embedder EmbeddingProvider
	vectors  *VectorStore
}

func NewDenseRetriever(embedder EmbeddingProvider, vectors *VectorStore) *DenseRetriever {
	return &DenseRetriever{embedder: embedder, vectors: vectors}
}

func (r *DenseRetriever) Name() string { return "dense" }

func (r *DenseRetriever) Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: no query embedding", model.ErrEmbedding)
	}
	Normalize(vecs[0])
	return r.vectors.Search(ctx, vecs[0], topK)
}

// LexicalRetriever runs BM25 over the in-process index
type LexicalRetriever struct {
	index *LexicalIndex
}

func NewLexicalRetriever(index *LexicalIndex) *LexicalRetriever {
	return &LexicalRetriever{index: index}
}

func (r *LexicalRetriever) Name() string { return "bm25" }

func (r *LexicalRetriever) Search(_ context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	return r.index.Search(query, topK), nil
}

// HybridRetriever fuses dense and lexical results with a convex
// combination of min-max-normalized scores over the union of candidates.
type HybridRetriever struct {
	dense   Retriever
	lexical Retriever
	wDense  float64
	wBM25   float64
}

func NewHybridRetriever(dense, lexical Retriever, wDense, wBM25 float64) *HybridRetriever {
	if wDense <= 0 && wBM25 <= 0 {
		wDense, wBM25 = DefaultDenseWeight, DefaultBM25Weight
	}
	return &HybridRetriever{dense: dense, lexical: lexical, wDense: wDense, wBM25: wBM25}
}

func (r *HybridRetriever) Name() string { return "hybrid" }

// normalizeByMax scales scores into [0,1] by the set's own max,
// guarding against an all-zero set.
func normalizeByMax(results []model.RetrievalResult) map[string]float64 {
	var max float64
	for _, res := range results {
		if res.Score > max {
			max = res.Score
		}
	}
	norm := make(map[string]float64, len(results))
	for _, res := range results {
		if max > 0 {
			norm[res.Text] = res.Score / max
		} else {
			norm[res.Text] = 0
		}
	}
	return norm
}

func (r *HybridRetriever) Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	limit := 2 * topK

	denseResults, err := r.dense.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	lexResults, err := r.lexical.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	denseNorm := normalizeByMax(denseResults)
	lexNorm := normalizeByMax(lexResults)

	// keep page metadata from whichever retriever saw the document
	pages := make(map[string]int)
	for _, res := range denseResults {
		pages[res.Text] = res.Page
	}
	for _, res := range lexResults {
		if _, ok := pages[res.Text]; !ok {
			pages[res.Text] = res.Page
		}
	}

	combined := make(map[string]float64)
	for text, score := range denseNorm {
		combined[text] += r.wDense * score
	}
	for text, score := range lexNorm {
		combined[text] += r.wBM25 * score
	}

	fused := make([]model.RetrievalResult, 0, len(combined))
	for text, score := range combined {
		fused = append(fused, model.RetrievalResult{
			Text:  text,
			Page:  pages[text],
			Score: score,
		})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Text < fused[j].Text
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// RerankRetriever decorates a base retriever with cross-encoder rescoring.
// On scorer failure the base results pass through unchanged.
type RerankRetriever struct {
	base       Retriever
	scorer     CrossEncoder
	candidates int
	logger     *slog.Logger
}

// DefaultRerankCandidates is how many base results feed the cross-encoder
const DefaultRerankCandidates = 20

func NewRerankRetriever(base Retriever, scorer CrossEncoder, candidates int, logger *slog.Logger) *RerankRetriever {
	if candidates <= 0 {
		candidates = DefaultRerankCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankRetriever{base: base, scorer: scorer, candidates: candidates, logger: logger.With("component", "rerank")}
}

func (r *RerankRetriever) Name() string { return r.base.Name() + "_rerank" }

func (r *RerankRetriever) Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	candidates, err := r.base.Search(ctx, query, r.candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= topK {
		return candidates, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	scores, err := r.scorer.Score(ctx, query, docs)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Warn("cross-encoder scoring failed, returning base results", "err", err)
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		return candidates, nil
	}

	reranked := make([]model.RetrievalResult, len(candidates))
	for i, c := range candidates {
		orig := c.Score
		rerank := scores[i]
		c.OriginalScore = &orig
		c.RerankScore = &rerank
		c.Score = rerank
		reranked[i] = c
	}
	sort.Slice(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// RetrieverFactory builds retrievers by name and applies the global
// rerank wrap when enabled.
type RetrieverFactory struct {
	embedder      EmbeddingProvider
	vectors       *VectorStore
	index         *LexicalIndex
	scorer        CrossEncoder
	rerankEnabled bool
	logger        *slog.Logger
}

func NewRetrieverFactory(embedder EmbeddingProvider, vectors *VectorStore, index *LexicalIndex, scorer CrossEncoder, rerankEnabled bool, logger *slog.Logger) *RetrieverFactory {
	return &RetrieverFactory{
		embedder:      embedder,
		vectors:       vectors,
		index:         index,
		scorer:        scorer,
		rerankEnabled: rerankEnabled,
		logger:        logger,
	}
}

// Names lists the retriever names the factory accepts
func (f *RetrieverFactory) Names() []string {
	return []string{"dense", "bm25", "hybrid", "dense_rerank", "bm25_rerank", "hybrid_rerank"}
}

// RerankEnabled reports whether the global rerank wrap is on
func (f *RetrieverFactory) RerankEnabled() bool { return f.rerankEnabled }

// Get resolves a retriever by name. When rerank is globally enabled and
// the name doesn't already request it, the result is wrapped.
func (f *RetrieverFactory) Get(name string) (Retriever, error) {
	wantRerank := strings.HasSuffix(name, "_rerank")
	baseName := strings.TrimSuffix(name, "_rerank")

	var base Retriever
	switch baseName {
	case "dense":
		base = NewDenseRetriever(f.embedder, f.vectors)
	case "bm25":
		base = NewLexicalRetriever(f.index)
	case "hybrid":
		base = NewHybridRetriever(
			NewDenseRetriever(f.embedder, f.vectors),
			NewLexicalRetriever(f.index),
			DefaultDenseWeight, DefaultBM25Weight,
		)
	default:
		return nil, fmt.Errorf("%w: unknown retriever %q", model.ErrValidation, name)
	}

	if wantRerank || f.rerankEnabled {
		return NewRerankRetriever(base, f.scorer, DefaultRerankCandidates, f.logger), nil
	}
	return base, nil
}
