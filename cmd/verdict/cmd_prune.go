package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/store"
)

var (
	pruneDays int
	pruneYes  bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune [repo]",
	Short: "Delete stored data older than the retention window",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := repoArg(args)

		cfg, err := config.Load(repoPath)
		if err != nil {
			return err
		}
		days := pruneDays
		if days < 0 {
			days = cfg.Retention.RetentionDays
		}

		if !pruneYes {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete all assessment data older than %d days? [y/N] ", days)
			reader := bufio.NewReader(cmd.InOrStdin())
			answer, _ := reader.ReadString('\n')
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer != "y" && answer != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		st, err := store.Open(cfg.DBPath(repoPath))
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.Prune(days)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Pruned %d rows:\n", counts.Total())
		fmt.Fprintf(out, "  feedback:       %d\n", counts.Feedback)
		fmt.Fprintf(out, "  mutation_cache: %d\n", counts.MutationCache)
		fmt.Fprintf(out, "  baselines:      %d\n", counts.Baselines)
		fmt.Fprintf(out, "  assessments:    %d\n", counts.Assessments)

		stats, err := st.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Remaining: %d assessments, %d baselines, %d mutation rows, %d feedback rows\n",
			stats["assessments"], stats["baselines"], stats["mutation_cache"], stats["feedback"])
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", -1, "Retention window in days (default from config)")
	pruneCmd.Flags().BoolVarP(&pruneYes, "yes", "y", false, "Skip confirmation")
}
