package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/server"
	"verdict/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve [repo]",
	Short: "Run the tool server over stdio",
	Long: `Runs a line-oriented JSON-RPC server exposing verdict_assess,
verdict_mutate, verdict_history, and verdict_feedback. Protocol traffic uses
stdout; logs go to stderr. The repository defaults to $VERDICT_REPO_PATH or
the working directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := serveRepoPath(args)

		cfg, err := config.Load(repoPath)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath(repoPath))
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(repoPath, cfg, st)
		return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func serveRepoPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if env := os.Getenv("VERDICT_REPO_PATH"); env != "" {
		return env
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(cwd)
}
