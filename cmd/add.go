package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/applypilot/apply-cli/internal/dedup"
	"github.com/applypilot/apply-cli/internal/model"
)

var (
	addLead        model.Lead
	addResume      string
	addCoverLetter string
	addForce       bool
	addReason      string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Track a new job application",
	Long: `Checks the posting against the tracker store and creates a record for it.

If a prior attempt exists the command refuses and prints the existing record.
Pass --force with --reason to proceed anyway: the existing record is annotated
with the override (no second record is ever created for the same posting).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		detector := initDetector(st)

		existing, err := detector.Check(ctx, addLead)
		if err != nil {
			return err
		}

		if existing != nil {
			if !addForce {
				fmt.Fprintln(os.Stderr, "Already applied; use --force --reason to proceed anyway:")
				printRecord(existing)
				return eris.Errorf("duplicate application: %s", existing.Fingerprint)
			}
			rec, err := detector.Override(ctx, existing.Fingerprint, addReason)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Duplicate override recorded:")
			printRecord(rec)
			return nil
		}

		rec, err := detector.Track(ctx, addLead, model.SourceModeSingle, dedup.Artifacts{
			ResumePath:      addResume,
			CoverLetterPath: addCoverLetter,
		})
		if err != nil {
			return err
		}

		printRecord(rec)
		return nil
	},
}

func printRecord(rec *model.TrackerRecord) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rec)
}

func init() {
	addCmd.Flags().StringVar(&addLead.URL, "url", "", "job posting URL")
	addCmd.Flags().StringVar(&addLead.Company, "company", "", "company name")
	addCmd.Flags().StringVar(&addLead.RoleTitle, "role", "", "role title")
	addCmd.Flags().StringVar(&addLead.Location, "location", "", "job location")
	addCmd.Flags().StringVar(&addResume, "resume", "", "path to the tailored resume artifact")
	addCmd.Flags().StringVar(&addCoverLetter, "cover-letter", "", "path to the cover letter artifact")
	addCmd.Flags().BoolVar(&addForce, "force", false, "proceed despite a detected duplicate")
	addCmd.Flags().StringVar(&addReason, "reason", "", "reason for overriding the duplicate (required with --force)")
	rootCmd.AddCommand(addCmd)
}
