package main

import (
	"github.com/spf13/cobra"
)

var (
	proofText       string
	proofScreenshot string
)

var proofCmd = &cobra.Command{
	Use:   "proof <fingerprint>",
	Short: "Attach submission proof to a tracked application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.UpdateProof(ctx, args[0], proofText, proofScreenshot)
		if err != nil {
			return err
		}

		printRecord(rec)
		return nil
	},
}

func init() {
	proofCmd.Flags().StringVar(&proofText, "text", "", "confirmation text shown after submission")
	proofCmd.Flags().StringVar(&proofScreenshot, "screenshot", "", "path to the confirmation screenshot")
	rootCmd.AddCommand(proofCmd)
}
