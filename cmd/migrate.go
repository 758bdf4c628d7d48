package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update both replica schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Remote.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("schemas up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
