package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/applypilot/apply-cli/internal/model"
	"github.com/applypilot/apply-cli/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked applications, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListRecent(ctx, store.ListFilter{
			Status: model.ApplicationStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No applications found.")
			return nil
		}

		formatRecordList(os.Stdout, recs)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show application counts by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Client-side aggregation over an unfiltered listing; the store has
		// no dedicated stats operation.
		recs, err := st.ListRecent(ctx, store.ListFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "stats")
		}

		formatStats(os.Stdout, computeStats(recs))
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <fingerprint>",
	Short: "Show the audit trail of a tracked application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.ListEvents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "events")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (new, in_progress, skipped, duplicate_skipped, submitted, failed)")
	listCmd.Flags().Int("limit", 50, "max number of applications to display")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)
}

// appStats holds per-status counts computed from a listing.
type appStats struct {
	Total     int
	ByStatus  map[model.ApplicationStatus]int
	Overrides int
}

func computeStats(recs []model.TrackerRecord) appStats {
	s := appStats{ByStatus: make(map[model.ApplicationStatus]int)}
	s.Total = len(recs)
	for _, r := range recs {
		s.ByStatus[r.Status]++
		if r.OverrideDuplicate {
			s.Overrides++
		}
	}
	return s
}

// formatRecordList writes a tabular list of applications to w.
func formatRecordList(out io.Writer, recs []model.TrackerRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FINGERPRINT\tCOMPANY\tROLE\tSTATUS\tFIRST SEEN\tSUBMITTED")
	_, _ = fmt.Fprintln(w, "-----------\t-------\t----\t------\t----------\t---------")

	for _, r := range recs {
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format("2006-01-02 15:04")
		}

		company := r.Company
		if len(company) > 30 {
			company = company[:27] + "..."
		}
		role := r.RoleTitle
		if len(role) > 30 {
			role = role[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateFingerprint(r.Fingerprint),
			company,
			role,
			r.Status,
			r.FirstSeenAt.Format("2006-01-02 15:04"),
			submitted,
		)
	}
	_ = w.Flush()
}

// formatStats writes per-status counts to w.
func formatStats(out io.Writer, s appStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total applications:\t%d\n", s.Total)
	for _, status := range []model.ApplicationStatus{
		model.StatusNew, model.StatusInProgress, model.StatusSkipped,
		model.StatusDuplicateSkipped, model.StatusSubmitted, model.StatusFailed,
	} {
		if n := s.ByStatus[status]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, n)
		}
	}
	_, _ = fmt.Fprintf(w, "Overrides:\t%d\n", s.Overrides)
	_ = w.Flush()
}

// truncateFingerprint returns the first 12 hex characters for compact display.
func truncateFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
