package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/playback-games/progress-sync/internal/monitor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live sync monitor as a daemon",
	Long:  "Consumes the account's change stream, sweeps on the configured interval, and auto-resolves divergent replicas. Unresolvable conflicts stay pending for `progress-sync resolve` or the HTTP surface.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mon := monitor.New(env.Coord, env.Engine, env.Remote, nil, cfg.Sync)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return mon.Run(gctx)
		})

		zap.L().Info("sync monitor running",
			zap.String("device_id", env.Coord.DeviceID()),
			zap.Bool("signed_in", env.IDs.Current() != ""),
		)

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		zap.L().Info("sync monitor stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
