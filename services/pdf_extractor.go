package services

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor turns PDF bytes into page-marked text using ledongthuc/pdf
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger.With("component", "pdf")}
}

// sanitizePDF truncates trailing garbage after the last %%EOF marker.
// PDFs fetched from the web frequently carry appended HTML or tracking
// payloads that break the parser.
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 || !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}
	if len(content)-pdfEnd > 10 {
		return content[:pdfEnd]
	}
	return content
}

// ExtractPages extracts text per page. Pages that fail to parse are
// skipped rather than failing the whole document.
func (p *PDFExtractor) ExtractPages(content []byte) ([]PageText, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}

	content = sanitizePDF(content)
	reader := bytes.NewReader(content)

	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages := make([]PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			p.logger.Warn("skipping null page", "page", i)
			continue
		}

		var textBuilder strings.Builder
		rows, err := page.GetTextByRow()
		if err == nil {
			for _, row := range rows {
				for _, word := range row.Content {
					textBuilder.WriteString(word.S)
					textBuilder.WriteByte(' ')
				}
				textBuilder.WriteByte('\n')
			}
		} else {
			// fall back to plain text extraction for odd layouts
			plain, perr := page.GetPlainText(nil)
			if perr != nil {
				p.logger.Warn("page extraction failed", "page", i, "err", perr)
				continue
			}
			textBuilder.WriteString(plain)
		}

		text := strings.TrimSpace(textBuilder.String())
		if text == "" {
			continue
		}
		pages = append(pages, PageText{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}
	return pages, nil
}

// ExtractText extracts the whole document as one page-marked string
func (p *PDFExtractor) ExtractText(content []byte) (string, error) {
	pages, err := p.ExtractPages(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, page := range pages {
		fmt.Fprintf(&b, "[PAGE %d]\n%s\n", page.Number, page.Text)
	}
	return b.String(), nil
}
