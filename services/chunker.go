package services

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/docuquery/docuquery/model"
)

// ChunkOptions configures the semantic chunker. Sizes are in
// whitespace-separated words.
type ChunkOptions struct {
	ChunkSize           int
	ChunkOverlap        int
	RespectBoundaries   bool
	EnableTitleBubbling bool
}

// DefaultChunkOptions returns the standard chunking configuration
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:           800,
		ChunkOverlap:        200,
		RespectBoundaries:   true,
		EnableTitleBubbling: true,
	}
}

// Chunker performs heading-aware segmentation with title-context bubbling
// and paragraph/sentence fallback.
type Chunker struct {
	opts ChunkOptions
}

// NewChunker creates a chunker with the given options
func NewChunker(opts ChunkOptions) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 800
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}
	return &Chunker{opts: opts}
}

var (
	mdHeadingRe     = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)
	htmlHeadingRe   = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]\s*>`)
	htmlInnerTagRe  = regexp.MustCompile(`(?s)<[^>]+>`)
	titleSentinelRe = regexp.MustCompile(`\[TITLE_L(\d)\]\s*(.*?)\s*\[/TITLE\]`)
	paragraphRe     = regexp.MustCompile(`\n\s*\n`)
)

type heading struct {
	level int
	title string
}

type docSection struct {
	title string
	body  string
	path  []string
}

// Chunk segments a raw document into semantically coherent chunks.
// For HTML and Markdown, headings are lifted into sentinels before
// cleaning so section boundaries survive tag stripping.
func (c *Chunker) Chunk(raw string, docType model.DocumentType) []model.SemanticChunk {
	text := raw
	hasHeadings := false

	switch docType {
	case model.DocumentTypeMarkdown:
		text, hasHeadings = sentinelizeMarkdown(text)
		text = CleanMarkdown(text)
	case model.DocumentTypeHTML:
		text, hasHeadings = sentinelizeHTML(text)
		text = CleanHTML(text)
	default:
		text = normalizeWhitespace(text)
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}

	index := 0
	var chunks []model.SemanticChunk

	if hasHeadings && c.opts.EnableTitleBubbling {
		for _, sec := range splitSections(text) {
			chunks = append(chunks, c.chunkSection(sec.body, sec.title, sec.path, 0, &index)...)
		}
		return chunks
	}

	return c.chunkSection(stripSentinels(text), "", nil, 0, &index)
}

// PageText is the extracted text of one PDF page.
type PageText struct {
	Number int
	Text   string
}

// ChunkPages segments page-extracted text (PDF), preserving page numbers.
func (c *Chunker) ChunkPages(pages []PageText) []model.SemanticChunk {
	index := 0
	var chunks []model.SemanticChunk
	for _, page := range pages {
		text := normalizeWhitespace(page.Text)
		if text == "" {
			continue
		}
		chunks = append(chunks, c.chunkSection(text, "", nil, page.Number, &index)...)
	}
	return chunks
}

// sentinelizeMarkdown replaces # headings with title sentinels
func sentinelizeMarkdown(text string) (string, bool) {
	found := false
	out := mdHeadingRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := mdHeadingRe.FindStringSubmatch(m)
		found = true
		return fmt.Sprintf("[TITLE_L%d] %s [/TITLE]", len(sub[1]), sub[2])
	})
	return out, found
}

// sentinelizeHTML replaces <hN> headings with title sentinels
func sentinelizeHTML(text string) (string, bool) {
	found := false
	out := htmlHeadingRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := htmlHeadingRe.FindStringSubmatch(m)
		level, _ := strconv.Atoi(sub[1])
		title := strings.TrimSpace(htmlInnerTagRe.ReplaceAllString(sub[2], " "))
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return ""
		}
		found = true
		return fmt.Sprintf("\n[TITLE_L%d] %s [/TITLE]\n", level, title)
	})
	return out, found
}

func stripSentinels(text string) string {
	return strings.TrimSpace(titleSentinelRe.ReplaceAllString(text, "$2"))
}

// splitSections cuts the cleaned text at sentinel boundaries. Each section
// inherits the title path built by scanning every heading in the document,
// in order, and keeping those whose level is at or above the section's own.
// The scan is position-independent: a later same-level heading contributes
// to an earlier section's path too.
func splitSections(text string) []docSection {
	matches := titleSentinelRe.FindAllStringSubmatchIndex(text, -1)
	var sections []docSection

	// text before the first heading has no path
	if len(matches) > 0 {
		if head := strings.TrimSpace(text[:matches[0][0]]); head != "" {
			sections = append(sections, docSection{body: head})
		}
	}

	headings := make([]heading, len(matches))
	for i, m := range matches {
		level, _ := strconv.Atoi(text[m[2]:m[3]])
		headings[i] = heading{level: level, title: strings.TrimSpace(text[m[4]:m[5]])}
	}

	for i, m := range matches {
		level := headings[i].level
		title := headings[i].title

		var path []string
		for _, h := range headings {
			if h.level <= level && h.title != "" {
				path = append(path, h.title)
			}
		}
		if title != "" && !slices.Contains(path, title) {
			path = append(path, title)
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, docSection{title: title, body: body, path: path})
	}

	if len(matches) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			sections = append(sections, docSection{body: body})
		}
	}
	return sections
}

// chunkSection grows chunks unit by unit until the word budget would be
// exceeded, then flushes with overlap carry-over.
func (c *Chunker) chunkSection(body, title string, path []string, page int, index *int) []model.SemanticChunk {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	paragraphs := splitNonEmpty(paragraphRe.Split(body, -1))
	sentenceMode := len(paragraphs) < 2 && c.opts.RespectBoundaries

	var units []string
	var sep string
	if !c.opts.RespectBoundaries {
		units = wordWindows(body, c.opts.ChunkSize)
		sep = " "
	} else if sentenceMode {
		units = splitSentences(body)
		sep = " "
	} else {
		units = paragraphs
		sep = "\n\n"
	}

	var chunks []model.SemanticChunk
	var cur []string
	curWords := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunkText := strings.Join(cur, sep)
		chunks = append(chunks, c.emit(chunkText, title, path, page, index))

		// overlap carry-over into the next chunk
		if sentenceMode {
			carry := cur
			if len(carry) > 2 {
				carry = carry[len(carry)-2:]
			}
			cur = append([]string(nil), carry...)
		} else if c.opts.ChunkOverlap > 0 {
			words := strings.Fields(chunkText)
			if len(words) > c.opts.ChunkOverlap {
				words = words[len(words)-c.opts.ChunkOverlap:]
			}
			cur = []string{strings.Join(words, " ")}
		} else {
			cur = nil
		}
		curWords = 0
		for _, u := range cur {
			curWords += len(strings.Fields(u))
		}
	}

	for _, unit := range units {
		unitWords := len(strings.Fields(unit))
		if curWords > 0 && curWords+unitWords > c.opts.ChunkSize {
			flush()
		}
		cur = append(cur, unit)
		curWords += unitWords
	}

	// flush happens only just before a unit is appended, so the trailing
	// buffer always carries at least one unit that was never emitted
	if len(cur) > 0 {
		chunkText := strings.Join(cur, sep)
		chunks = append(chunks, c.emit(chunkText, title, path, page, index))
	}
	return chunks
}

func (c *Chunker) emit(text, title string, path []string, page int, index *int) model.SemanticChunk {
	text = strings.TrimSpace(text)
	chunk := model.SemanticChunk{
		Text:       text,
		Title:      title,
		Page:       page,
		ChunkIndex: *index,
		WordCount:  len(strings.Fields(text)),
	}
	*index++

	nonEmpty := make([]string, 0, len(path))
	for _, p := range path {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) > 0 {
		chunk.Section = strings.Join(nonEmpty, " > ")
		if c.opts.EnableTitleBubbling {
			ctxParts := nonEmpty
			if len(ctxParts) > 2 {
				ctxParts = ctxParts[len(ctxParts)-2:]
			}
			chunk.Text = fmt.Sprintf("[Context: %s]\n%s", strings.Join(ctxParts, " > "), text)
			chunk.HasTitleContext = true
		}
	}
	return chunk
}

func splitNonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks text at terminal punctuation followed by space
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// wordWindows chops text into fixed-size word windows (boundary-free mode)
func wordWindows(text string, size int) []string {
	words := strings.Fields(text)
	var out []string
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}
