package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"resub/internal/reconcile"
	"resub/internal/snapshot"
	"resub/internal/store"

	"github.com/spf13/cobra"
)

var importDryRun bool

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would change without calling the API")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Subscribe/unsubscribe until the account matches a snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), importDryRun)
	},
}

func runImport(ctx context.Context, dryRun bool) error {
	// An explicit file is checked before logging in so a bad path fails fast.
	if flagFile != "" {
		if _, err := snapshot.Load(flagFile); err != nil {
			return err
		}
	}

	client, err := login(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	user := client.User()
	file := snapshotFile(user)
	desired, err := snapshot.Load(file)
	if err != nil {
		return err
	}
	fmt.Printf("Subscribing %s to subreddits in '%s'\n", user, file)

	rec := startRecording(store.ModeImport, user, file, dryRun)
	defer rec.close()

	r := reconcile.New(client, reconcilerOptions(dryRun, rec.record)...)
	res, err := r.Sync(ctx, desired)
	if res != nil {
		printSummary(os.Stdout, res, rec.runID())
	}
	return err
}

func printSummary(w io.Writer, res *reconcile.Result, runID string) {
	if res.Plan.Empty() {
		fmt.Fprintln(w, "Already up to date")
		return
	}

	for _, op := range res.Ops {
		switch op.Outcome {
		case reconcile.OutcomeSkippedNotFound, reconcile.OutcomeSkippedForbidden, reconcile.OutcomeSkippedTransient:
			fmt.Fprintf(w, "  skipped %-12s r/%s (%s)\n", op.Action, op.Name, op.Outcome)
		case reconcile.OutcomePlanned:
			fmt.Fprintf(w, "  would %-12s r/%s\n", op.Action, op.Name)
		}
	}

	fmt.Fprintf(w, "Subscribed %d, unsubscribed %d, skipped %d",
		res.Count(reconcile.OutcomeSubscribed),
		res.Count(reconcile.OutcomeUnsubscribed),
		res.Skipped(),
	)
	if n := res.Count(reconcile.OutcomePlanned); n > 0 {
		fmt.Fprintf(w, ", planned %d", n)
	}
	fmt.Fprintln(w)
	if runID != "" {
		fmt.Fprintf(w, "Recorded as run %s\n", runID[:8])
	}
}
