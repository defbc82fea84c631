package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"verdict/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Verification intelligence for AI-generated code",
	Long: `verdict grades incremental code changes through a seven-stage pipeline:
mutation testing, static analysis, security scanning, a test-stability
baseline, and project-knowledge risk signals, fused into a weighted
multi-dimensional score with a letter grade.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr, "Re-run with --verbose for details.")
		os.Exit(1)
	}
}

// repoArg resolves the optional positional repository argument.
func repoArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
