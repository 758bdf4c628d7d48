package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show replica and mirror state for this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "device:    %s\n", env.Coord.DeviceID())

		owner := env.IDs.Current()
		if owner == "" {
			fmt.Fprintln(out, "identity:  anonymous")
		} else {
			fmt.Fprintf(out, "identity:  %s\n", owner)
		}

		cached, err := env.Local.List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cached:    %d day(s)\n", len(cached))
		fmt.Fprintf(out, "deferred:  %d mirror write(s)\n", env.Coord.DirtyCount())

		if err := env.Remote.Ping(ctx); err != nil {
			fmt.Fprintln(out, "account:   unreachable")
		} else {
			fmt.Fprintln(out, "account:   reachable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
