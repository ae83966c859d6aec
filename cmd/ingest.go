package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koopa0/docent/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Chunk, embed, and index a directory of documents",
	Long: `Ingest walks the given directory (or corpus_dir from the config when
omitted), extracts text from supported documents (.txt, .md, .html),
splits it into overlapping chunks, embeds them, and loads them into
the index. Re-running over an unchanged corpus is a no-op.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return runIngest(cmd.Context(), dir)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, dir string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if dir != "" {
		cfg.CorpusDir = dir
	}
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	report, err := a.Pipeline.Run(ctx, cfg.CorpusDir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", cfg.CorpusDir, err)
	}

	fmt.Printf("Ingested %s in %s\n", cfg.CorpusDir, report.Duration.Round(time.Millisecond))
	fmt.Printf("  chunks added:      %d\n", report.ChunksAdded)
	fmt.Printf("  duplicate chunks:  %d\n", report.ChunksSkippedAsDuplicate)
	fmt.Printf("  documents indexed: %d\n", report.DocumentsIndexed)
	if report.DocumentsFailed > 0 {
		fmt.Printf("  documents failed:  %d\n", report.DocumentsFailed)
	}
	for _, w := range report.Warnings {
		if len(w.SkippedPages) > 0 {
			fmt.Printf("  warning: %s: %s (pages %v)\n", w.Source, w.Reason, w.SkippedPages)
		} else {
			fmt.Printf("  warning: %s: %s\n", w.Source, w.Reason)
		}
	}
	return nil
}
