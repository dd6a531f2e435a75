package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/applypilot/apply-cli/internal/pipeline"
)

var (
	batchFile  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate a CSV of job leads against the tracker",
	Long: `Reads a lead file (columns: url, company, role, location) and processes the
leads concurrently. Each lead is checked for a prior attempt and tracked with
source mode "autonomous" when unseen. Duplicates are skipped and counted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		leads, err := pipeline.ParseLeadsCSV(batchFile)
		if err != nil {
			return eris.Wrap(err, "batch: parse leads")
		}
		zap.L().Info("parsed leads", zap.Int("leads", len(leads)))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		proc := pipeline.NewProcessor(initDetector(st), zap.L(), cfg.Batch.Concurrency, cfg.Batch.LeadsPerSec)
		_, err = proc.Run(ctx, leads, batchLimit)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to the lead CSV file")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of leads to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
