package services

import (
	"strings"
	"testing"

	"github.com/docuquery/docuquery/model"
)

func TestCleanHTML(t *testing.T) {
	in := `<html><head><style>body { color: red; }</style></head>
<body><h1>Title</h1><p>Hello <b>world</b>.</p>
<script>alert("nope");</script></body></html>`

	out := CleanHTML(in)

	if strings.Contains(out, "alert") {
		t.Error("script content survived cleaning")
	}
	if strings.Contains(out, "color: red") {
		t.Error("style content survived cleaning")
	}
	if strings.Contains(out, "<") {
		t.Errorf("tags survived cleaning: %q", out)
	}
	if !strings.Contains(out, "Hello world.") {
		t.Errorf("visible text lost: %q", out)
	}
}

func TestCleanHTMLPreservesParagraphBreaks(t *testing.T) {
	out := CleanHTML("<p>first para</p><p>second para</p>")
	if !strings.Contains(out, "first para\n\nsecond para") {
		t.Errorf("block boundaries lost: %q", out)
	}
}

func TestCleanMarkdown(t *testing.T) {
	in := "Some **bold** and *italic* text with a [link](https://example.com) and `code`.\n\n```\nfenced block\n```\n\n> a quote"

	out := CleanMarkdown(in)

	for _, banned := range []string{"**", "](", "`", "fenced block", "> a quote"} {
		if strings.Contains(out, banned) {
			t.Errorf("marker %q survived cleaning: %q", banned, out)
		}
	}
	for _, kept := range []string{"bold", "italic", "link", "a quote"} {
		if !strings.Contains(out, kept) {
			t.Errorf("visible text %q lost: %q", kept, out)
		}
	}
}

func TestCleanTextPassthrough(t *testing.T) {
	in := "plain text stays as it is"
	if got := Clean(in, model.DocumentTypeText); got != in {
		t.Errorf("text must pass through, got %q", got)
	}
}
