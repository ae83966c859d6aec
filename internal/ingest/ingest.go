// Package ingest loads a directory of source documents into the chunk
// index: walk, extract per-page text, split, embed, insert.
//
// One pipeline run is active at a time. A run survives individual bad
// documents (they are reported, not fatal) but aborts on an embedding
// provider failure, because continuing would produce a partially
// indexed corpus with no record of where it stops.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/koopa0/docent/internal/chunk"
	"github.com/koopa0/docent/internal/knowledge"
)

// ErrIngestInProgress rejects a run while another run holds the
// pipeline.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// maxFileBytes caps how large a single source document may be.
const maxFileBytes = 10 << 20

// Index is the slice of the chunk store the pipeline writes through.
// knowledge.Store satisfies it.
type Index interface {
	Add(ctx context.Context, chunks []chunk.Chunk) (inserted, skipped int, err error)
}

// Warning flags a document that was ingested with reduced coverage or
// rejected outright.
type Warning struct {
	Source       string `json:"source"`
	SkippedPages []int  `json:"skippedPages,omitempty"`
	Reason       string `json:"reason"`
}

// Report summarizes one pipeline run.
type Report struct {
	ChunksAdded              int           `json:"chunksAdded"`
	ChunksSkippedAsDuplicate int           `json:"chunksSkippedAsDuplicate"`
	DocumentsIndexed         int           `json:"documentsIndexed"`
	DocumentsFailed          int           `json:"documentsFailed"`
	Warnings                 []Warning     `json:"warnings,omitempty"`
	Duration                 time.Duration `json:"-"`
}

// DocumentsWithWarnings counts documents that produced a warning.
func (r Report) DocumentsWithWarnings() int {
	return len(r.Warnings)
}

// Pipeline ingests document directories into an Index.
type Pipeline struct {
	index   Index
	cfg     chunk.Config
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a Pipeline. Zero chunk budgets fall back to the package
// defaults.
func New(index Index, cfg chunk.Config, logger *slog.Logger) (*Pipeline, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Size <= 0 {
		cfg.Size = chunk.DefaultSize
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = chunk.DefaultOverlap
	}
	return &Pipeline{index: index, cfg: cfg, logger: logger}, nil
}

// Ingesting reports whether a run is currently active.
func (p *Pipeline) Ingesting() bool {
	return p.running.Load()
}

// Run walks dir and ingests every supported document under it.
//
// Documents that cannot be extracted are recorded in the report and
// skipped. An embedding provider failure aborts the run; the returned
// report then carries the counts accumulated before the failure.
func (p *Pipeline) Run(ctx context.Context, dir string) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrIngestInProgress
	}
	defer p.running.Store(false)

	start := time.Now()
	var report Report

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return report, fmt.Errorf("resolving source directory: %w", err)
	}

	// Reads go through os.Root so a symlink inside the corpus cannot
	// pull in files from elsewhere on the host.
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return report, fmt.Errorf("opening source directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	paths, err := collectSources(absDir)
	if err != nil {
		return report, err
	}

	p.logger.Info("ingestion started", "dir", absDir, "documents", len(paths))

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("ingestion canceled: %w", err)
		}

		if err := p.ingestFile(ctx, root, rel, &report); err != nil {
			// Provider failures poison every later document in the run.
			if errors.Is(err, knowledge.ErrEmbeddingProvider) ||
				errors.Is(err, knowledge.ErrDimensionMismatch) {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("ingesting %s: %w", rel, err)
			}
			report.DocumentsFailed++
			report.Warnings = append(report.Warnings, Warning{
				Source: rel,
				Reason: err.Error(),
			})
			p.logger.Warn("document skipped", "source", rel, "error", err)
		}
	}

	report.Duration = time.Since(start)
	p.logger.Info("ingestion finished",
		"chunks_added", report.ChunksAdded,
		"chunks_skipped", report.ChunksSkippedAsDuplicate,
		"documents_indexed", report.DocumentsIndexed,
		"documents_failed", report.DocumentsFailed,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// ingestFile extracts, splits, and indexes a single document. The
// source name recorded in the index is the path relative to the
// ingestion root, so chunk ids stay stable across machines.
func (p *Pipeline) ingestFile(ctx context.Context, root *os.Root, rel string, report *Report) error {
	info, err := root.Stat(rel)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() > maxFileBytes {
		return fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxFileBytes)
	}

	data, err := root.ReadFile(rel)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	pages, err := extract(rel, data)
	if err != nil {
		return err
	}

	doc, err := chunk.Split(filepath.ToSlash(rel), pages, p.cfg)
	if err != nil {
		return err
	}
	if doc.HighSkipRatio() {
		report.Warnings = append(report.Warnings, Warning{
			Source:       doc.Source,
			SkippedPages: doc.SkippedPages,
			Reason: fmt.Sprintf("%d of %d pages yielded no text",
				len(doc.SkippedPages), doc.TotalPages),
		})
	}

	inserted, skipped, err := p.index.Add(ctx, doc.Chunks)
	if err != nil {
		return err
	}
	report.ChunksAdded += inserted
	report.ChunksSkippedAsDuplicate += skipped
	report.DocumentsIndexed++

	p.logger.Debug("document indexed",
		"source", doc.Source,
		"chunks", len(doc.Chunks),
		"inserted", inserted,
		"skipped", skipped)
	return nil
}

// collectSources lists supported files under dir, relative paths in
// lexical order so runs are deterministic.
func collectSources(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() != "." && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExt(filepath.Ext(path)) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source directory: %w", err)
	}
	return paths, nil
}
