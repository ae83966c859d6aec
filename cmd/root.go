// Package cmd wires the docent CLI: serve, ingest, ask, version.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "docent",
	Short: "docent answers questions about a document corpus with cited sources",
	Long: `docent is a retrieval-grounded question answering service for a fixed
corpus of legal and policy documents. Every substantive answer is
grounded in retrieved passages and cites them.

Run "docent ingest <dir>" to load a corpus, then "docent serve" to
expose the HTTP API or "docent ask" for a one-shot answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and installs the configured logger as
// the process default. Shared by every command that boots the app.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	return cfg, logger, nil
}
