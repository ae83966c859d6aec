package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question against the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.ValidateProvider(); err != nil {
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

	// One-shot questions run on a throwaway session through the same
	// flow the server registers.
	flow := agent.NewFlow(a.Genkit, a.Agent)
	resp, err := flow.Run(ctx, agent.Request{
		SessionID: "ask-" + uuid.New().String(),
		Message:   question,
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(resp.Answer)

	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, s := range resp.Sources {
			fmt.Printf("  [%d] %s, page %d (score %.2f)\n", i+1, s.Name, s.Page, s.Similarity)
		}
	} else if !resp.Retrieved {
		fmt.Println("\n(answered without document sources)")
	}
	if resp.Degraded {
		fmt.Println("(degraded: retrieval failed, answered from memory only)")
	}
	return nil
}
