package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/applypilot/apply-cli/internal/model"
)

var checkLead model.Lead

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a job posting has already been applied to",
	Long: `Computes the identity fingerprint for a job posting and looks it up in the
tracker store. Exits 0 either way; the output says whether a prior attempt
exists. Nothing is created.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := initDetector(st).Check(ctx, checkLead)
		if err != nil {
			return err
		}

		if rec == nil {
			fmt.Fprintln(os.Stderr, "No existing application found.")
			return nil
		}

		fmt.Fprintln(os.Stderr, "Existing application found:")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkLead.URL, "url", "", "job posting URL")
	checkCmd.Flags().StringVar(&checkLead.Company, "company", "", "company name")
	checkCmd.Flags().StringVar(&checkLead.RoleTitle, "role", "", "role title")
	checkCmd.Flags().StringVar(&checkLead.Location, "location", "", "job location")
	rootCmd.AddCommand(checkCmd)
}
