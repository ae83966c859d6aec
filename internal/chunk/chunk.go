// Package chunk splits extracted document text into bounded,
// overlapping passages for embedding and retrieval.
//
// Budgets are measured in words. Text is broken along a prioritized
// separator ladder (paragraph, line, sentence, word, and finally a
// hard rune split) into fragments that each fit the chunk budget;
// fragments are then accumulated into chunks. Every chunk after the
// first starts with an overlap rebuilt from the tail fragments of the
// previous chunk until the overlap word budget is met, so retrieval
// never loses context at a chunk boundary.
//
// Splitting is deterministic: an unchanged document always produces
// identical chunk ids, contents, and offsets.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoExtractableText rejects a document none of whose pages carry
// text. Ingestion must not turn such a document into an empty chunk
// set silently.
var ErrNoExtractableText = errors.New("document has no extractable text")

// warnSkipRatio is the fraction of skipped pages above which a
// document is flagged for the ingestion caller.
const warnSkipRatio = 0.20

// Default word budgets.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Config carries the word budgets for splitting.
type Config struct {
	// Size is the maximum words per chunk, overlap included.
	Size int
	// Overlap is the word budget copied from the tail of the previous
	// chunk into the head of the next.
	Overlap int
}

func (c Config) validate() error {
	if c.Size < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be >= 0 and < size, got %d", c.Overlap)
	}
	return nil
}

// Page is one extraction unit of a source document. Pages that yield
// no text stay in the sequence so skips can be recorded.
type Page struct {
	// Number is 1-based and follows the source document's own order.
	Number int
	Text   string
}

// Chunk is a single retrieval unit.
type Chunk struct {
	// ID is derived from the source name and the byte offset of the
	// chunk's first non-overlap text, so re-splitting an unchanged
	// document reproduces it exactly.
	ID     string
	Source string
	// Page is the page on which the chunk's new text begins.
	Page int
	// Offset is the byte position of the new text within the document's
	// joined extractable text.
	Offset int
	// Content carries the full chunk text. The first OverlapLen bytes
	// repeat the tail of the previous chunk.
	Content    string
	OverlapLen int
}

// Document is the chunker's output for one source document.
type Document struct {
	Source       string
	Chunks       []Chunk
	SkippedPages []int
	TotalPages   int
}

// SkipRatio reports the fraction of pages that yielded no text.
func (d Document) SkipRatio() float64 {
	if d.TotalPages == 0 {
		return 0
	}
	return float64(len(d.SkippedPages)) / float64(d.TotalPages)
}

// HighSkipRatio reports whether enough pages were skipped that the
// ingestion caller should surface a data-quality warning.
func (d Document) HighSkipRatio() bool {
	return d.SkipRatio() > warnSkipRatio
}

// chunkID derives the stable chunk identifier.
func chunkID(source string, offset int) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(offset)))
	return "chunk_" + hex.EncodeToString(h.Sum(nil))[:16]
}

// pageMark records where a page's text begins in the joined document
// text, for attributing chunk offsets back to pages.
type pageMark struct {
	offset int
	page   int
}

// Split turns one document's extracted pages into the ordered chunk
// sequence covering its entire extractable text.
func Split(source string, pages []Page, cfg Config) (Document, error) {
	if err := cfg.validate(); err != nil {
		return Document{}, err
	}
	if source == "" {
		return Document{}, errors.New("source name is required")
	}

	doc := Document{Source: source, TotalPages: len(pages)}

	// Join non-empty pages with a paragraph break; blank pages are
	// recorded, not silently dropped.
	var b strings.Builder
	var marks []pageMark
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			doc.SkippedPages = append(doc.SkippedPages, p.Number)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		marks = append(marks, pageMark{offset: b.Len(), page: p.Number})
		b.WriteString(p.Text)
	}

	text := b.String()
	if text == "" {
		return Document{}, fmt.Errorf("%w: %s", ErrNoExtractableText, source)
	}

	frags := splitFragments(text, cfg.Size)
	doc.Chunks = assemble(source, text, frags, marks, cfg)
	return doc, nil
}

// assemble accumulates fragments into chunks, seeding each non-initial
// chunk with the word-budgeted overlap from its predecessor.
func assemble(source, text string, frags []fragment, marks []pageMark, cfg Config) []Chunk {
	var chunks []Chunk

	// cur holds the fragments of the chunk under construction;
	// newStart is the index of its first non-overlap fragment.
	var cur []fragment
	var curWords, newStart int

	flush := func() {
		if len(cur) == newStart {
			return
		}
		first, last := cur[0], cur[len(cur)-1]
		newOffset := cur[newStart].offset
		chunks = append(chunks, Chunk{
			ID:         chunkID(source, newOffset),
			Source:     source,
			Page:       pageAt(marks, newOffset),
			Offset:     newOffset,
			Content:    text[first.offset : last.offset+len(last.text)],
			OverlapLen: newOffset - first.offset,
		})
	}

	for _, f := range frags {
		if len(cur) > newStart && curWords+f.words > cfg.Size {
			flush()
			seed := overlapTail(cur, cfg.Overlap)
			// Make room for the incoming fragment: the overlap yields
			// before the chunk budget does.
			for len(seed) > 0 && wordsOf(seed)+f.words > cfg.Size {
				seed = seed[1:]
			}
			cur = append([]fragment(nil), seed...)
			curWords = wordsOf(cur)
			newStart = len(cur)
		}
		cur = append(cur, f)
		curWords += f.words
	}
	flush()

	return chunks
}

// overlapTail walks backward through a chunk's fragments until the
// overlap word budget is met. The whole tail is carried, never just
// the final fragment.
func overlapTail(frags []fragment, budget int) []fragment {
	if budget <= 0 {
		return nil
	}
	words := 0
	i := len(frags)
	for i > 0 && words < budget {
		i--
		words += frags[i].words
	}
	return frags[i:]
}

func wordsOf(frags []fragment) int {
	n := 0
	for _, f := range frags {
		n += f.words
	}
	return n
}

// pageAt returns the page containing the given text offset.
func pageAt(marks []pageMark, offset int) int {
	page := 1
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		page = m.page
	}
	return page
}
