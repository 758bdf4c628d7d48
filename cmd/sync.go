package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/playback-games/progress-sync/internal/model"
)

var (
	syncImportAll    bool
	syncKeepRemote   bool
	syncKeepSeparate bool
	syncMergeDays    []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the device cache with the signed-in account",
	Long:  "Lists the differences between the device's anonymous progress and the account's rows. Pass a decision flag to apply it; with no flag the conflicts are only listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Engine.DetectConflicts(ctx)
		if err != nil {
			return err
		}
		printConflicts(cmd.OutOrStdout(), cs)
		if cs.Empty() {
			return nil
		}

		decision, ok, err := decisionFromFlags()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "no decision flag given, nothing applied")
			return nil
		}

		if err := env.Engine.Apply(ctx, cs, decision); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", decision.Kind)
		return nil
	},
}

// decisionFromFlags maps the mutually exclusive decision flags to a
// Decision. ok is false when no flag was given.
func decisionFromFlags() (model.Decision, bool, error) {
	var decisions []model.Decision
	if syncImportAll {
		decisions = append(decisions, model.Decision{Kind: model.ImportAll})
	}
	if syncKeepRemote {
		decisions = append(decisions, model.Decision{Kind: model.KeepRemoteOnly})
	}
	if syncKeepSeparate {
		decisions = append(decisions, model.Decision{Kind: model.KeepSeparate})
	}
	if len(syncMergeDays) > 0 {
		decisions = append(decisions, model.Decision{Kind: model.MergeSelected, DayKeys: syncMergeDays})
	}

	switch len(decisions) {
	case 0:
		return model.Decision{}, false, nil
	case 1:
		return decisions[0], true, nil
	default:
		return model.Decision{}, false, eris.New("pass at most one of --import-all, --keep-remote, --keep-separate, --merge")
	}
}

func printConflicts(w io.Writer, cs *model.ConflictSet) {
	if cs.Empty() {
		fmt.Fprintln(w, "replicas are converged, nothing to reconcile")
		return
	}
	if cs.Bootstrap {
		fmt.Fprintln(w, "account has no progress yet; --import-all saves everything")
	}
	for _, c := range cs.Conflicts {
		switch c.Classification {
		case model.Mergeable:
			fmt.Fprintf(w, "%s  local only: %d attempt(s), won=%v\n",
				c.DayKey, c.Local.Attempts, c.Local.Won)
		default:
			fmt.Fprintf(w, "%s  both played: local %d attempt(s) won=%v, account %d attempt(s) won=%v\n",
				c.DayKey, c.Local.Attempts, c.Local.Won, c.Remote.Attempts, c.Remote.Won)
		}
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncImportAll, "import-all", false, "push every local record to the account")
	syncCmd.Flags().BoolVar(&syncKeepRemote, "keep-remote", false, "keep the account rows, discard local progress")
	syncCmd.Flags().BoolVar(&syncKeepSeparate, "keep-separate", false, "leave local progress anonymous and out of future syncs")
	syncCmd.Flags().StringSliceVar(&syncMergeDays, "merge", nil, "push only the listed day keys")
	rootCmd.AddCommand(syncCmd)
}
