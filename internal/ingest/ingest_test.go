package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/koopa0/docent/internal/chunk"
	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/testutil"
)

// fakeIndex records added chunks and deduplicates by id, mirroring the
// real store's contract.
type fakeIndex struct {
	mu       sync.Mutex
	chunks   map[string]chunk.Chunk
	failWith error
	blockOn  chan struct{} // when set, Add waits until the channel closes
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string]chunk.Chunk)}
}

func (f *fakeIndex) Add(_ context.Context, chunks []chunk.Chunk) (int, int, error) {
	if f.blockOn != nil {
		<-f.blockOn
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, 0, f.failWith
	}
	inserted, skipped := 0, 0
	for _, c := range chunks {
		if _, ok := f.chunks[c.ID]; ok {
			skipped++
			continue
		}
		f.chunks[c.ID] = c
		inserted++
	}
	return inserted, skipped, nil
}

func (f *fakeIndex) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

// writeCorpus materializes files into a fresh temp dir.
func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newPipeline(t *testing.T, index Index) *Pipeline {
	t.Helper()
	p, err := New(index, chunk.Config{Size: 50, Overlap: 10}, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRunIndexesDocuments(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"tax/income.txt":  "The income tax threshold is 12,570 pounds.\n\nRates above it rise in bands.",
		"policy/leave.md": "# Leave policy\n\nEmployees accrue 25 days of annual leave.",
		"ignored.pdf":     "binary-ish content the pipeline must not touch",
	})
	index := newFakeIndex()
	p := newPipeline(t, index)

	report, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DocumentsIndexed != 2 {
		t.Errorf("DocumentsIndexed = %d, want 2", report.DocumentsIndexed)
	}
	if report.ChunksAdded != index.size() {
		t.Errorf("ChunksAdded = %d, index holds %d", report.ChunksAdded, index.size())
	}
	if report.ChunksAdded == 0 {
		t.Error("expected chunks to be added")
	}
	if report.DocumentsFailed != 0 || len(report.Warnings) != 0 {
		t.Errorf("unexpected failures: %+v", report)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"doc.txt": "Some corpus text that chunks the same way every run.",
	})
	index := newFakeIndex()
	p := newPipeline(t, index)

	first, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	sizeAfterFirst := index.size()

	second, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.ChunksAdded != 0 {
		t.Errorf("second run added %d chunks, want 0", second.ChunksAdded)
	}
	if second.ChunksSkippedAsDuplicate != first.ChunksAdded {
		t.Errorf("second run skipped %d, want %d", second.ChunksSkippedAsDuplicate, first.ChunksAdded)
	}
	if index.size() != sizeAfterFirst {
		t.Errorf("index grew from %d to %d on re-ingestion", sizeAfterFirst, index.size())
	}
}

func TestRunRejectsDocumentWithNoText(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"blank.txt": "   \n\t\n",
	})
	index := newFakeIndex()
	p := newPipeline(t, index)

	report, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DocumentsFailed != 1 {
		t.Fatalf("DocumentsFailed = %d, want 1", report.DocumentsFailed)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0].Reason, "no extractable text") {
		t.Errorf("warnings = %+v", report.Warnings)
	}
	if index.size() != 0 {
		t.Errorf("empty document produced %d chunks", index.size())
	}
}

func TestRunFlagsHighSkipRatio(t *testing.T) {
	// Five pages, three of them blank: well past the 20% warning bar.
	pages := strings.Join([]string{"page one text", "", "", "", "page five text"}, "\f")
	dir := writeCorpus(t, map[string]string{"scanned.txt": pages})
	index := newFakeIndex()
	p := newPipeline(t, index)

	report, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DocumentsIndexed != 1 {
		t.Fatalf("DocumentsIndexed = %d, want 1", report.DocumentsIndexed)
	}
	if report.DocumentsWithWarnings() != 1 {
		t.Fatalf("expected a data-quality warning, got %+v", report.Warnings)
	}
	w := report.Warnings[0]
	if len(w.SkippedPages) != 3 {
		t.Errorf("SkippedPages = %v, want 3 pages", w.SkippedPages)
	}
}

func TestRunAbortsOnEmbeddingFailure(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"doc.txt": "Text that will never make it into the index.",
	})
	index := newFakeIndex()
	index.failWith = knowledge.ErrEmbeddingProvider
	p := newPipeline(t, index)

	_, err := p.Run(context.Background(), dir)
	if !errors.Is(err, knowledge.ErrEmbeddingProvider) {
		t.Fatalf("Run error = %v, want ErrEmbeddingProvider", err)
	}
	if index.size() != 0 {
		t.Errorf("index size = %d after provider failure, want 0", index.size())
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"doc.txt": "some text"})
	index := newFakeIndex()
	index.blockOn = make(chan struct{})
	p := newPipeline(t, index)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), dir)
		done <- err
	}()

	// Wait for the first run to take the pipeline.
	for !p.Ingesting() {
	}

	if _, err := p.Run(context.Background(), dir); !errors.Is(err, ErrIngestInProgress) {
		t.Errorf("concurrent Run error = %v, want ErrIngestInProgress", err)
	}

	close(index.blockOn)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if p.Ingesting() {
		t.Error("Ingesting() still true after run finished")
	}
}

func TestRunMissingDirectory(t *testing.T) {
	index := newFakeIndex()
	p := newPipeline(t, index)

	if _, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
