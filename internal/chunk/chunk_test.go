package chunk

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

// sentences builds n five-word sentences as one block of prose.
func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "alpha beta gamma delta epsilon%d. ", i)
	}
	return b.String()
}

// joined reproduces the text the chunker operates on: non-blank pages
// joined with a paragraph break.
func joined(pages []Page) string {
	var parts []string
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// reconstruct concatenates the non-overlap portion of every chunk.
func reconstruct(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content[c.OverlapLen:])
	}
	return b.String()
}

func TestSplit_ReconstructsText(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "First paragraph on page one.\n\nSecond paragraph with more words in it."},
		{Number: 2, Text: sentences(30)},
		{Number: 3, Text: "Short closing page."},
	}
	cfg := Config{Size: 25, Overlap: 5}

	doc, err := Split("manual.pdf", pages, cfg)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(doc.Chunks) < 3 {
		t.Fatalf("len(Chunks) = %d, want at least 3", len(doc.Chunks))
	}

	if got, want := reconstruct(doc.Chunks), joined(pages); got != want {
		t.Errorf("reconstructed text does not match input\ngot  %q\nwant %q", got, want)
	}
	for i, c := range doc.Chunks {
		if n := countWords(c.Content); n > cfg.Size {
			t.Errorf("chunk %d has %d words, budget %d", i, n, cfg.Size)
		}
		if c.Source != "manual.pdf" {
			t.Errorf("chunk %d Source = %q, want %q", i, c.Source, "manual.pdf")
		}
	}
}

func TestSplit_OverlapMeetsBudget(t *testing.T) {
	pages := []Page{{Number: 1, Text: sentences(40)}}
	cfg := Config{Size: 40, Overlap: 10}

	doc, err := Split("guide.txt", pages, cfg)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(doc.Chunks) < 3 {
		t.Fatalf("len(Chunks) = %d, want at least 3", len(doc.Chunks))
	}

	if doc.Chunks[0].OverlapLen != 0 {
		t.Errorf("first chunk OverlapLen = %d, want 0", doc.Chunks[0].OverlapLen)
	}
	for i := 1; i < len(doc.Chunks); i++ {
		prev, cur := doc.Chunks[i-1], doc.Chunks[i]
		prefix := cur.Content[:cur.OverlapLen]
		if prefix == "" {
			t.Fatalf("chunk %d carries no overlap", i)
		}
		if !strings.HasSuffix(prev.Content, prefix) {
			t.Errorf("chunk %d overlap is not a suffix of chunk %d\noverlap %q", i, i-1, prefix)
		}
		if n := countWords(prefix); n < cfg.Overlap {
			t.Errorf("chunk %d overlap = %d words, want >= %d", i, n, cfg.Overlap)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: sentences(25)},
		{Number: 2, Text: sentences(25)},
	}
	cfg := Config{Size: 30, Overlap: 6}

	first, err := Split("spec.md", pages, cfg)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	second, err := Split("spec.md", pages, cfg)
	if err != nil {
		t.Fatalf("Split() second run error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Split() of the same input differs")
	}

	seen := make(map[string]bool, len(first.Chunks))
	for _, c := range first.Chunks {
		if seen[c.ID] {
			t.Errorf("duplicate chunk id %q", c.ID)
		}
		seen[c.ID] = true
		if !strings.HasPrefix(c.ID, "chunk_") {
			t.Errorf("chunk id %q missing prefix", c.ID)
		}
	}

	other, err := Split("other.md", pages, cfg)
	if err != nil {
		t.Fatalf("Split() other source error = %v", err)
	}
	if other.Chunks[0].ID == first.Chunks[0].ID {
		t.Error("different sources produced the same chunk id")
	}
}

func TestSplit_SkipsBlankPages(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "Real content on the first page."},
		{Number: 2, Text: ""},
		{Number: 3, Text: " \n\t "},
		{Number: 4, Text: "Real content on the last page."},
	}

	doc, err := Split("scan.pdf", pages, Config{Size: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	if got, want := doc.SkippedPages, []int{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("SkippedPages = %v, want %v", got, want)
	}
	if doc.TotalPages != 4 {
		t.Errorf("TotalPages = %d, want 4", doc.TotalPages)
	}
	if !doc.HighSkipRatio() {
		t.Errorf("HighSkipRatio() = false with ratio %.2f", doc.SkipRatio())
	}
	if got, want := reconstruct(doc.Chunks), joined(pages); got != want {
		t.Errorf("reconstructed text = %q, want %q", got, want)
	}
}

func TestSplit_NoExtractableText(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: "   "},
	}

	_, err := Split("empty.pdf", pages, Config{Size: 100, Overlap: 10})
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("Split() error = %v, want ErrNoExtractableText", err)
	}

	_, err = Split("none.pdf", nil, Config{Size: 100, Overlap: 10})
	if !errors.Is(err, ErrNoExtractableText) {
		t.Errorf("Split() with no pages error = %v, want ErrNoExtractableText", err)
	}
}

func TestSplit_PageAttribution(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: strings.TrimSpace(sentences(6))},
		{Number: 2, Text: strings.TrimSpace(sentences(6))},
	}

	doc, err := Split("two-pages.txt", pages, Config{Size: 30, Overlap: 5})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(doc.Chunks) != 2 {
		t.Fatalf("len(Chunks) = %d, want 2", len(doc.Chunks))
	}
	if doc.Chunks[0].Page != 1 {
		t.Errorf("first chunk Page = %d, want 1", doc.Chunks[0].Page)
	}
	if doc.Chunks[1].Page != 2 {
		t.Errorf("second chunk Page = %d, want 2", doc.Chunks[1].Page)
	}
}

func TestSplit_OverlapYieldsWhenTight(t *testing.T) {
	// Three nine-word paragraphs against a ten-word budget: the overlap
	// must give way entirely so each paragraph still fits one chunk.
	para := "one two three four five six seven eight nine"
	text := para + "\n\n" + para + "\n\n" + para

	doc, err := Split("tight.txt", []Page{{Number: 1, Text: text}}, Config{Size: 10, Overlap: 8})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(doc.Chunks) != 3 {
		t.Fatalf("len(Chunks) = %d, want 3", len(doc.Chunks))
	}
	for i, c := range doc.Chunks {
		if c.OverlapLen != 0 {
			t.Errorf("chunk %d OverlapLen = %d, want 0 when overlap cannot fit", i, c.OverlapLen)
		}
	}
	if got := reconstruct(doc.Chunks); got != text {
		t.Errorf("reconstructed text = %q, want %q", got, text)
	}
}

func TestSplit_TabSeparatedWordsHonorBudget(t *testing.T) {
	// None of the string separators match these delimiters; the word
	// rung must still keep every chunk inside the budget.
	tests := []struct {
		name string
		sep  string
	}{
		{"tabs", "\t"},
		{"non-breaking spaces", "\u00a0"},
		{"carriage returns", "\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("word"+tt.sep, 500)
			cfg := Config{Size: 100, Overlap: 10}

			doc, err := Split("export.txt", []Page{{Number: 1, Text: text}}, cfg)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(doc.Chunks) < 5 {
				t.Fatalf("len(Chunks) = %d, want at least 5", len(doc.Chunks))
			}
			for i, c := range doc.Chunks {
				if n := countWords(c.Content); n > cfg.Size {
					t.Errorf("chunk %d has %d words, budget %d", i, n, cfg.Size)
				}
			}
			for i := 1; i < len(doc.Chunks); i++ {
				prefix := doc.Chunks[i].Content[:doc.Chunks[i].OverlapLen]
				if n := countWords(prefix); n < cfg.Overlap {
					t.Errorf("chunk %d overlap = %d words, want >= %d", i, n, cfg.Overlap)
				}
			}
			if got := reconstruct(doc.Chunks); got != text {
				t.Error("reconstructed text does not match input")
			}
		})
	}
}

func TestSplit_HardSplitsUnbrokenRun(t *testing.T) {
	run := strings.Repeat("界", 2*maxFragmentRunes+100)

	doc, err := Split("blob.txt", []Page{{Number: 1, Text: run}}, Config{Size: 1000, Overlap: 200})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if got := reconstruct(doc.Chunks); got != run {
		t.Error("reconstructed run does not match input")
	}
	for i, c := range doc.Chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("chunk %d content split inside a rune", i)
		}
	}

	frags := splitFragments(run, 1000)
	if len(frags) != 3 {
		t.Fatalf("len(frags) = %d, want 3 rune groups", len(frags))
	}
	for i, f := range frags[:2] {
		if n := utf8.RuneCountInString(f.text); n != maxFragmentRunes {
			t.Errorf("fragment %d = %d runes, want %d", i, n, maxFragmentRunes)
		}
	}
}

func TestSplit_ConfigErrors(t *testing.T) {
	pages := []Page{{Number: 1, Text: "some text"}}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{Size: 0, Overlap: 0}},
		{"negative overlap", Config{Size: 10, Overlap: -1}},
		{"overlap equals size", Config{Size: 10, Overlap: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("doc.txt", pages, tt.cfg); err == nil {
				t.Error("Split() error = nil, want config error")
			}
		})
	}

	if _, err := Split("", pages, Config{Size: 10, Overlap: 2}); err == nil {
		t.Error("Split() with empty source error = nil, want error")
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"a b  c", 3},
		{"  padded  ", 1},
		{"tab\tand\nnewline", 3},
	}
	for _, tt := range tests {
		if got := countWords(tt.in); got != tt.want {
			t.Errorf("countWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
