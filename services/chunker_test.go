package services

import (
	"strings"
	"testing"

	"github.com/docuquery/docuquery/model"
)

func TestChunkMarkdownTitleBubbling(t *testing.T) {
	doc := `# Guide

Intro paragraph about the guide.

## Installation

Install the package with your package manager.

## Usage

Run the binary and point it at your documents.`

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.Chunk(doc, model.DocumentTypeMarkdown)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}

	var install *model.SemanticChunk
	for i := range chunks {
		if chunks[i].Title == "Installation" {
			install = &chunks[i]
		}
	}
	if install == nil {
		t.Fatal("no chunk carries the Installation title")
	}
	// the path scan keeps every heading at or above the section's level,
	// in document order, so the later sibling Usage is part of the path
	if install.Section != "Guide > Installation > Usage" {
		t.Errorf("section = %q, want %q", install.Section, "Guide > Installation > Usage")
	}
	if !install.HasTitleContext {
		t.Error("expected has_title_context on a bubbled chunk")
	}
	if !strings.HasPrefix(install.Text, "[Context: Installation > Usage]") {
		t.Errorf("missing context preamble: %q", install.Text)
	}
}

func TestChunkWordCountExcludesPreamble(t *testing.T) {
	doc := "# Title\n\none two three four five."

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.Chunk(doc, model.DocumentTypeMarkdown)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	if chunks[0].WordCount != 5 {
		t.Errorf("word_count = %d, want 5 (preamble must not count)", chunks[0].WordCount)
	}
	if !strings.Contains(chunks[0].Text, "[Context: Title]") {
		t.Errorf("expected preamble in text, got %q", chunks[0].Text)
	}
}

func TestChunkAncestorPathUsesLastTwoComponents(t *testing.T) {
	doc := `# Book

## Part One

### Chapter Three

Deeply nested content lives here.`

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.Chunk(doc, model.DocumentTypeMarkdown)

	var nested *model.SemanticChunk
	for i := range chunks {
		if chunks[i].Title == "Chapter Three" {
			nested = &chunks[i]
		}
	}
	if nested == nil {
		t.Fatal("no chunk for the nested section")
	}
	if nested.Section != "Book > Part One > Chapter Three" {
		t.Errorf("section = %q", nested.Section)
	}
	// preamble keeps only the last two path components
	if !strings.HasPrefix(nested.Text, "[Context: Part One > Chapter Three]") {
		t.Errorf("preamble should use last two components: %q", nested.Text)
	}
}

func TestChunkSiblingHeadingsShareLevelPath(t *testing.T) {
	doc := `# Root

## A

### A1

Content under a1.

## B

Content under b.`

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.Chunk(doc, model.DocumentTypeMarkdown)

	var b *model.SemanticChunk
	for i := range chunks {
		if chunks[i].Title == "B" {
			b = &chunks[i]
		}
	}
	if b == nil {
		t.Fatal("no chunk for section B")
	}
	// same-level siblings stay in the path; only deeper headings drop out
	if b.Section != "Root > A > B" {
		t.Errorf("section under B = %q, want %q", b.Section, "Root > A > B")
	}
	if strings.Contains(b.Section, "A1") {
		t.Errorf("section under B must not inherit the deeper A1: %q", b.Section)
	}
}

func TestChunkParagraphOverlap(t *testing.T) {
	// two 30-word paragraphs under a 35-word budget force a flush
	// between them, carrying a 5-word overlap
	para1 := strings.Repeat("alpha ", 30)
	para2 := strings.Repeat("beta ", 30)
	doc := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	chunker := NewChunker(ChunkOptions{
		ChunkSize:         35,
		ChunkOverlap:      5,
		RespectBoundaries: true,
	})
	chunks := chunker.Chunk(doc, model.DocumentTypeText)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	// the second chunk starts with the carried-over tail of the first
	if !strings.HasPrefix(chunks[1].Text, "alpha alpha alpha alpha alpha") {
		t.Errorf("second chunk should start with overlap words: %q", chunks[1].Text[:40])
	}
	if !strings.Contains(chunks[1].Text, "beta") {
		t.Error("second chunk should contain the second paragraph")
	}
}

func TestChunkSentenceFallback(t *testing.T) {
	// a single paragraph forces sentence mode
	doc := "First sentence here. Second sentence follows. Third one now. Fourth closes it."

	chunker := NewChunker(ChunkOptions{
		ChunkSize:         6,
		ChunkOverlap:      2,
		RespectBoundaries: true,
	})
	chunks := chunker.Chunk(doc, model.DocumentTypeText)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks in sentence mode, got %d", len(chunks))
	}
	// sentence mode carries the last two sentences into the next chunk
	if !strings.Contains(chunks[1].Text, "First sentence here.") && !strings.Contains(chunks[1].Text, "Second sentence follows.") {
		t.Errorf("expected sentence overlap, got %q", chunks[1].Text)
	}
}

func TestChunkHTMLHeadings(t *testing.T) {
	doc := `<html><body>
<h1>Manual</h1>
<p>Opening text for the manual.</p>
<h2>Setup</h2>
<p>Setup instructions go here.</p>
<script>tracking();</script>
</body></html>`

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.Chunk(doc, model.DocumentTypeHTML)

	if len(chunks) < 2 {
		t.Fatalf("expected chunks per section, got %d", len(chunks))
	}
	for _, c := range chunks {
		if strings.Contains(c.Text, "tracking()") {
			t.Error("script content leaked into a chunk")
		}
		if strings.Contains(c.Text, "<p>") {
			t.Error("tags leaked into a chunk")
		}
	}

	found := false
	for _, c := range chunks {
		if c.Section == "Manual > Setup" {
			found = true
		}
	}
	if !found {
		t.Error("expected a chunk with section Manual > Setup")
	}
}

func TestChunkNoBubblingFlag(t *testing.T) {
	doc := "# Head\n\nBody text under the heading."

	opts := DefaultChunkOptions()
	opts.EnableTitleBubbling = false
	chunker := NewChunker(opts)
	chunks := chunker.Chunk(doc, model.DocumentTypeMarkdown)

	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range chunks {
		if strings.Contains(c.Text, "[Context:") {
			t.Errorf("preamble emitted with bubbling disabled: %q", c.Text)
		}
		if c.HasTitleContext {
			t.Error("has_title_context set with bubbling disabled")
		}
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunker := NewChunker(DefaultChunkOptions())
	if chunks := chunker.Chunk("   \n\n  ", model.DocumentTypeText); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestChunkPagesKeepsPageNumbers(t *testing.T) {
	pages := []PageText{
		{Number: 1, Text: "Content of the first page."},
		{Number: 2, Text: ""},
		{Number: 3, Text: "Content of the third page."},
	}

	chunker := NewChunker(DefaultChunkOptions())
	chunks := chunker.ChunkPages(pages)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[1].Page != 3 {
		t.Errorf("pages = %d, %d; want 1, 3", chunks[0].Page, chunks[1].Page)
	}
	if chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
		t.Error("chunk indexes must be continuous across pages")
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Trailing words")
	if len(got) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(got), got)
	}
	if got[3] != "Trailing words" {
		t.Errorf("unterminated tail lost: %v", got)
	}
}
