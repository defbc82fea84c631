package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/render"
	"verdict/internal/store"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history [repo]",
	Short: "Show past assessment history",
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

		assessments, err := st.GetAssessments(historyLimit, historyOffset, "")
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), render.DisplayHistory(assessments))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "Max results")
	historyCmd.Flags().IntVarP(&historyOffset, "offset", "o", 0, "Results to skip")
}
