package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/applypilot/apply-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "apply-cli",
	Short: "Job application tracker with duplicate detection",
	Long:  "Tracks every job-application attempt in a durable local store, derives a stable fingerprint for each posting, and refuses to silently apply to the same job twice.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
