package cmd

import (
	"context"
	"fmt"
	"os"

	"resub/internal/reconcile"
	"resub/internal/snapshot"
	"resub/internal/store"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var exportCopy bool

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVar(&exportCopy, "copy", false, "also copy the snapshot to the clipboard")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Save the account's subreddits to a snapshot file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), exportCopy)
	},
}

func runExport(ctx context.Context, copyToClipboard bool) error {
	client, err := login(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	user := client.User()
	file := snapshotFile(user)
	fmt.Printf("Exporting %s's subreddits to %s\n", user, file)

	current, err := reconcile.New(client, reconcilerOptions(false, nil)...).Current(ctx)
	if err != nil {
		return err
	}
	if err := snapshot.Save(file, current); err != nil {
		return err
	}

	rec := startRecording(store.ModeExport, user, file, false)
	defer rec.close()
	for _, name := range snapshot.Export(current) {
		rec.record(reconcile.Op{Action: reconcile.ActionExport, Name: name, Outcome: reconcile.OutcomeSaved})
	}

	if copyToClipboard {
		data, err := snapshot.Marshal(current)
		if err == nil {
			err = clipboard.WriteAll(string(data))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not copy to clipboard: %v\n", err)
		} else {
			fmt.Println("Snapshot copied to clipboard!")
		}
	}

	fmt.Printf("Saved %d subreddits\n", current.Cardinality())
	return nil
}
