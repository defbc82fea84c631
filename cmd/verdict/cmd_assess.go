package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/engine"
	"verdict/internal/render"
	"verdict/internal/store"
)

var (
	assessRefBefore     string
	assessRefAfter      string
	assessTestCmd       string
	assessSkipBaseline  bool
	assessSkipMutations bool
	assessJSON          bool
)

var assessCmd = &cobra.Command{
	Use:   "assess [repo]",
	Short: "Run a full assessment on code changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := repoArg(args)

		cfg, err := config.Load(repoPath)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath(repoPath))
		if err != nil {
			return err
		}
		defer st.Close()

		eng := engine.New(st, cfg, engine.Options{
			TestCmd:       assessTestCmd,
			SkipBaseline:  assessSkipBaseline,
			SkipMutations: assessSkipMutations,
		})

		report, err := eng.Assess(cmd.Context(), repoPath, assessRefBefore, assessRefAfter)
		if err != nil {
			return fmt.Errorf("assessment failed: %w", err)
		}

		if assessJSON {
			out, err := report.ToJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), render.DisplayReport(report))
		return nil
	},
}

func init() {
	assessCmd.Flags().StringVarP(&assessRefBefore, "ref-before", "b", "", "Git ref before changes")
	assessCmd.Flags().StringVarP(&assessRefAfter, "ref-after", "a", "", "Git ref after changes")
	assessCmd.Flags().StringVarP(&assessTestCmd, "test-cmd", "t", "", "Test command (default from config)")
	assessCmd.Flags().BoolVar(&assessSkipBaseline, "skip-baseline", false, "Skip flakiness baseline")
	assessCmd.Flags().BoolVar(&assessSkipMutations, "skip-mutations", false, "Skip mutation testing")
	assessCmd.Flags().BoolVar(&assessJSON, "json", false, "Output raw JSON")
}
