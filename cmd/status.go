package main

import (
	"github.com/spf13/cobra"

	"github.com/applypilot/apply-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status <fingerprint> <status>",
	Short: "Update the status of a tracked application",
	Long: `Transitions a tracked application to a new status. Valid statuses:
new, in_progress, skipped, duplicate_skipped, submitted, failed.

Transitioning to "submitted" stamps submitted_at exactly once; repeating the
transition is harmless.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.UpdateStatus(ctx, args[0], model.ApplicationStatus(args[1]))
		if err != nil {
			return err
		}

		printRecord(rec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
