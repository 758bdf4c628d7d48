package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/playback-games/progress-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "progress-sync",
	Short: "Daily puzzle progress replication engine",
	Long:  "Keeps a device's puzzle progress cache and the account's durable store converged: local-first writes, background mirroring, sign-in reconciliation, live multi-device conflict resolution.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
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
