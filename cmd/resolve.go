package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/playback-games/progress-sync/internal/normalize"
	"github.com/playback-games/progress-sync/internal/reconcile"
)

var resolveKeep string

var resolveCmd = &cobra.Command{
	Use:   "resolve <day-key>",
	Short: "Resolve one conflicted day by hand",
	Long:  "Writes the chosen replica of the given day to the losing side. Use when automatic resolution escalated a conflict.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveKeep != "local" && resolveKeep != "remote" {
			return eris.New("--keep must be local or remote")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		owner := env.IDs.Current()
		if owner == "" {
			return reconcile.ErrNotSignedIn
		}
		dayKey := args[0]

		local := env.Local.Read(ctx, dayKey)
		remote, err := env.Remote.Read(ctx, owner, dayKey)
		if err != nil {
			return err
		}

		switch resolveKeep {
		case "local":
			if local == nil {
				return eris.Errorf("no cached record for %s", dayKey)
			}
			rec := normalize.Normalize(*local)
			rec.Owner = owner
			if err := env.Remote.Upsert(ctx, owner, rec, env.Coord.DeviceID()); err != nil {
				return err
			}
		case "remote":
			if remote == nil {
				return eris.Errorf("account has no record for %s", dayKey)
			}
			env.Local.Write(ctx, dayKey, normalize.Normalize(*remote), owner)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "kept %s replica for %s\n", resolveKeep, dayKey)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveKeep, "keep", "", "which replica wins: local or remote")
	_ = resolveCmd.MarkFlagRequired("keep")
	rootCmd.AddCommand(resolveCmd)
}
