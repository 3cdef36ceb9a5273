package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/docuquery/docuquery/model"
)

type stubRetriever struct {
	name    string
	results []model.RetrievalResult
	err     error
	gotTopK int
}

func (s *stubRetriever) Name() string { return s.name }

func (s *stubRetriever) Search(_ context.Context, _ string, topK int) ([]model.RetrievalResult, error) {
	s.gotTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

type stubScorer struct {
	scores []float64
	err    error
}

func (s *stubScorer) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(docs)], nil
}

func TestHybridFusion(t *testing.T) {
	dense := &stubRetriever{name: "dense", results: []model.RetrievalResult{
		{Text: "shared", Score: 0.8},
		{Text: "dense-only", Score: 0.4},
	}}
	lexical := &stubRetriever{name: "bm25", results: []model.RetrievalResult{
		{Text: "shared", Score: 5.0},
		{Text: "lex-only", Score: 2.5},
	}}

	hybrid := NewHybridRetriever(dense, lexical, 0.7, 0.3)
	results, err := hybrid.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatal(err)
	}

	if dense.gotTopK != 6 || lexical.gotTopK != 6 {
		t.Errorf("expected 2*top_k candidates, got %d/%d", dense.gotTopK, lexical.gotTopK)
	}

	scores := map[string]float64{}
	for _, r := range results {
		scores[r.Text] = r.Score
	}

	// shared: max in both sets, so 0.7*1.0 + 0.3*1.0 = 1.0
	if math.Abs(scores["shared"]-1.0) > 1e-9 {
		t.Errorf("shared score = %f, want 1.0", scores["shared"])
	}
	// dense-only: 0.7 * (0.4/0.8)
	if math.Abs(scores["dense-only"]-0.35) > 1e-9 {
		t.Errorf("dense-only score = %f, want 0.35", scores["dense-only"])
	}
	// lex-only: 0.3 * (2.5/5.0)
	if math.Abs(scores["lex-only"]-0.15) > 1e-9 {
		t.Errorf("lex-only score = %f, want 0.15", scores["lex-only"])
	}

	if results[0].Text != "shared" {
		t.Errorf("ranking order wrong: %q first", results[0].Text)
	}
}

func TestHybridZeroScoreGuard(t *testing.T) {
	dense := &stubRetriever{name: "dense", results: []model.RetrievalResult{{Text: "a", Score: 0}}}
	lexical := &stubRetriever{name: "bm25", results: nil}

	hybrid := NewHybridRetriever(dense, lexical, 0.7, 0.3)
	results, err := hybrid.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Score != 0 {
		t.Errorf("all-zero set must normalize to zero, got %+v", results)
	}
}

func TestRerankPassThroughWhenFewCandidates(t *testing.T) {
	base := &stubRetriever{name: "dense", results: []model.RetrievalResult{
		{Text: "only", Score: 0.9},
	}}
	rr := NewRerankRetriever(base, &stubScorer{err: errors.New("must not be called")}, 20, nil)

	results, err := rr.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].RerankScore != nil {
		t.Errorf("expected untouched pass-through, got %+v", results)
	}
}

func TestRerankRescoresAndPreservesOriginal(t *testing.T) {
	base := &stubRetriever{name: "dense", results: []model.RetrievalResult{
		{Text: "a", Score: 0.9},
		{Text: "b", Score: 0.8},
		{Text: "c", Score: 0.7},
	}}
	// the cross-encoder disagrees with the base order
	rr := NewRerankRetriever(base, &stubScorer{scores: []float64{1.0, 5.0, 3.0}}, 20, nil)

	results, err := rr.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top 2, got %d", len(results))
	}
	if results[0].Text != "b" || results[1].Text != "c" {
		t.Errorf("rerank order wrong: %q, %q", results[0].Text, results[1].Text)
	}
	if results[0].Score != 5.0 {
		t.Errorf("score must be the rerank score, got %f", results[0].Score)
	}
	if results[0].OriginalScore == nil || *results[0].OriginalScore != 0.8 {
		t.Error("original score lost")
	}
}

func TestRerankFallsBackOnScorerError(t *testing.T) {
	base := &stubRetriever{name: "dense", results: []model.RetrievalResult{
		{Text: "a", Score: 0.9},
		{Text: "b", Score: 0.8},
		{Text: "c", Score: 0.7},
	}}
	rr := NewRerankRetriever(base, &stubScorer{err: errors.New("model load failed")}, 20, nil)

	results, err := rr.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "a" {
		t.Errorf("expected base results unchanged, got %+v", results)
	}
	if results[0].RerankScore != nil {
		t.Error("fallback results must not carry rerank scores")
	}
}

func TestRerankRetrieverName(t *testing.T) {
	base := &stubRetriever{name: "hybrid"}
	rr := NewRerankRetriever(base, &stubScorer{}, 20, nil)
	if rr.Name() != "hybrid_rerank" {
		t.Errorf("name = %q", rr.Name())
	}
}
