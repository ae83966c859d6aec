package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/koopa0/docent/internal/chunk"
)

// pageBreak separates pages in plain-text corpora. It is the form feed
// pdftotext and similar converters emit between pages, so a converted
// PDF keeps its page boundaries through ingestion.
const pageBreak = "\f"

// supportedExt reports whether the pipeline knows how to extract a
// file with the given extension.
func supportedExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	default:
		return false
	}
}

// extract turns one raw document into its ordered page sequence. Pages
// that carry no text stay in the sequence so the chunker can record
// them as skipped.
func extract(rel string, data []byte) ([]chunk.Page, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}

	switch strings.ToLower(filepath.Ext(rel)) {
	case ".html", ".htm":
		return extractHTML(data)
	default:
		return extractText(data), nil
	}
}

// extractText splits plain text or markdown into pages on form feeds.
// A file without form feeds is a single page. Page text is passed
// through untouched: the chunker's reconstruction guarantee depends on
// extraction never rewriting content.
func extractText(data []byte) []chunk.Page {
	parts := strings.Split(string(data), pageBreak)
	pages := make([]chunk.Page, len(parts))
	for i, text := range parts {
		pages[i] = chunk.Page{Number: i + 1, Text: text}
	}
	return pages
}

// extractHTML renders an HTML document to text, dropping markup,
// scripts, and styles. The whole document becomes one page: HTML has
// no page structure worth preserving.
func extractHTML(data []byte) ([]chunk.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	// Block elements become paragraph breaks so the chunker's separator
	// ladder still sees document structure.
	var b strings.Builder
	const blocks = "p, h1, h2, h3, h4, h5, h6, li, td, th, blockquote, pre"
	sel.Find(blocks).Each(
		func(_ int, s *goquery.Selection) {
			if s.Find(blocks).Length() > 0 {
				// A nested block contributes its own text.
				return
			}
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(text)
		})

	text := b.String()
	if text == "" {
		// No block elements; fall back to the flat text rendering.
		text = strings.TrimSpace(sel.Text())
	}

	return []chunk.Page{{Number: 1, Text: text}}, nil
}
