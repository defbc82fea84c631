package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdict/internal/config"
	"verdict/internal/models"
	"verdict/internal/render"
	"verdict/internal/store"
)

var (
	feedbackContext string
	feedbackRepo    string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <assessment_id> <outcome>",
	Short: "Submit feedback on an assessment (accepted, rejected, or modified)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		assessmentID, rawOutcome := args[0], args[1]

		outcome, ok := models.ParseFeedbackOutcome(rawOutcome)
		if !ok {
			return fmt.Errorf("invalid outcome '%s': must be accepted, rejected, or modified", rawOutcome)
		}

		cfg, err := config.Load(feedbackRepo)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath(feedbackRepo))
		if err != nil {
			return err
		}
		defer st.Close()

		assessment, err := st.GetAssessment(assessmentID)
		if err != nil {
			return err
		}
		if assessment == nil {
			return fmt.Errorf("assessment '%s' not found", assessmentID)
		}

		fb := models.NewFeedback(assessmentID, outcome, feedbackContext)
		if err := st.SaveFeedback(fb); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), render.FormatFeedbackResponse(assessmentID, rawOutcome))
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVarP(&feedbackContext, "context", "c", "", "Optional explanation")
	feedbackCmd.Flags().StringVarP(&feedbackRepo, "repo", "r", ".", "Repository path")
}
