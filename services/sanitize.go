package services

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/docuquery/docuquery/model"
)

var (
	multiBlankRe   = regexp.MustCompile(`\n{3,}`)
	mdCodeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	mdInlineCodeRe = regexp.MustCompile("`([^`]*)`")
	mdImageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLinkRe       = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	mdBoldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdItalicRe     = regexp.MustCompile(`\*([^*]+)\*`)
	mdBoldUnderRe  = regexp.MustCompile(`__([^_]+)__`)
	mdUnderRe      = regexp.MustCompile(`\b_([^_]+)_\b`)
	mdHeadMarkRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdQuoteRe      = regexp.MustCompile(`(?m)^>\s?`)
)

// Clean sanitizes raw content according to its document type. Plain text
// passes through; PDF content is expected to already be extracted text.
func Clean(content string, docType model.DocumentType) string {
	switch docType {
	case model.DocumentTypeHTML:
		return CleanHTML(content)
	case model.DocumentTypeMarkdown:
		return CleanMarkdown(content)
	default:
		return content
	}
}

// blockTags introduce paragraph breaks so downstream paragraph splitting
// still sees document structure after tags are stripped
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"table": true, "tr": true, "section": true, "article": true, "header": true,
	"footer": true, "blockquote": true, "pre": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// CleanHTML strips scripts, styles and all tags, preserving block
// structure as blank lines.
func CleanHTML(in string) string {
	tz := html.NewTokenizer(strings.NewReader(in))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tz.Next() {
		case html.ErrorToken:
			return normalizeWhitespace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
			} else if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
			} else if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tz.Text())
			}
		}
	}
}

// CleanMarkdown strips code, links, emphasis and structural markers while
// keeping the visible text.
func CleanMarkdown(in string) string {
	out := mdCodeFenceRe.ReplaceAllString(in, "")
	out = mdImageRe.ReplaceAllString(out, "$1")
	out = mdLinkRe.ReplaceAllString(out, "$1")
	out = mdInlineCodeRe.ReplaceAllString(out, "$1")
	out = mdBoldRe.ReplaceAllString(out, "$1")
	out = mdBoldUnderRe.ReplaceAllString(out, "$1")
	out = mdItalicRe.ReplaceAllString(out, "$1")
	out = mdUnderRe.ReplaceAllString(out, "$1")
	out = mdHeadMarkRe.ReplaceAllString(out, "")
	out = mdQuoteRe.ReplaceAllString(out, "")
	return normalizeWhitespace(out)
}

// normalizeWhitespace trims lines, collapses intra-line runs of spaces and
// caps blank-line runs at one (so paragraph splits survive).
func normalizeWhitespace(in string) string {
	lines := strings.Split(in, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	out = multiBlankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
