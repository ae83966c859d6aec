package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(w io.Writer) error {
	fmt.Fprintf(w, "docent %s\n", AppVersion)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Fprintln(w, "GEMINI_API_KEY: configured")
	} else {
		fmt.Fprintln(w, "GEMINI_API_KEY: not set")
	}
	return nil
}
