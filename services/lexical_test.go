package services

import (
	"reflect"
	"testing"

	"github.com/docuquery/docuquery/model"
)

func docsFromTexts(texts ...string) []model.SemanticChunk {
	chunks := make([]model.SemanticChunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.SemanticChunk{Text: text, ChunkIndex: i}
	}
	return chunks
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! foo_bar x2")
	want := []string{"hello", "world", "foo_bar", "x2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestLexicalSearchRanking(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocuments(docsFromTexts(
		"python is a programming language used everywhere",
		"go is a compiled programming language",
		"bananas are yellow fruit",
	))

	results := idx.Search("python language", 10)
	if len(results) == 0 {
		t.Fatal("expected results for matching terms")
	}
	if results[0].Text != "python is a programming language used everywhere" {
		t.Errorf("best match = %q", results[0].Text)
	}

	for _, r := range results {
		if r.Score <= 0 {
			t.Errorf("zero-score document returned: %q", r.Text)
		}
		if r.Text == "bananas are yellow fruit" {
			t.Error("non-matching document returned")
		}
	}
}

func TestLexicalSearchTopK(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocuments(docsFromTexts(
		"shared term one", "shared term two", "shared term three", "shared term four",
	))

	if got := idx.Search("shared", 2); len(got) != 2 {
		t.Errorf("top-k not honored: got %d results", len(got))
	}
}

func TestLexicalSearchNoMatch(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocuments(docsFromTexts("completely unrelated content"))

	if got := idx.Search("zebra", 5); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
	if got := idx.Search("", 5); got != nil {
		t.Errorf("empty query must return nil, got %v", got)
	}
}

func TestLexicalIncrementalAdd(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocuments(docsFromTexts("first batch document"))
	idx.AddDocuments(docsFromTexts("second batch document"))

	if idx.Size() != 2 {
		t.Fatalf("size = %d, want 2", idx.Size())
	}
	if got := idx.Search("document", 10); len(got) != 2 {
		t.Errorf("both batches should match, got %d", len(got))
	}
}
