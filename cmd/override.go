package main

import (
	"github.com/spf13/cobra"
)

var overrideReason string

var overrideCmd = &cobra.Command{
	Use:   "override <fingerprint>",
	Short: "Record a duplicate override on an existing application",
	Long: `Annotates an existing record with an explicit decision to proceed despite
the duplicate. A non-empty --reason is required. Status is not changed;
override is an audit marker, not a lifecycle transition.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := initDetector(st).Override(ctx, args[0], overrideReason)
		if err != nil {
			return err
		}

		printRecord(rec)
		return nil
	},
}

func init() {
	overrideCmd.Flags().StringVar(&overrideReason, "reason", "", "why the duplicate is being pursued anyway")
	rootCmd.AddCommand(overrideCmd)
}
