package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"resub/internal/store"

	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "max number of runs to list")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		return printHistory(os.Stdout, st, historyLimit)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the operations of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		return printRun(os.Stdout, st, args[0])
	},
}

func openStore() (*store.Store, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if !store.Exists(dir) {
		return nil, fmt.Errorf("no history here, run 'resub init' first")
	}
	return store.New(dir)
}

func printHistory(w io.Writer, st *store.Store, limit int) error {
	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs yet, run 'resub export' or 'resub import' first")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-18s %-8s %-16s %s\n", "ID", "CREATED", "MODE", "USER", "FILE")
	fmt.Fprintln(w, "─────────────────────────────────────────────────────────────────")
	for _, r := range runs {
		count, _ := st.CountOperations(r.ID)
		mode := string(r.Mode)
		if r.DryRun {
			mode += "*"
		}
		fmt.Fprintf(w, "%-10s %-18s %-8s %-16s %s (%d ops)\n",
			r.ID[:8],
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			mode,
			r.User,
			r.File,
			count,
		)
	}
	return nil
}

func printRun(w io.Writer, st *store.Store, id string) error {
	run, err := st.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return err
	}

	ops, err := st.GetOperations(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run:     %s\n", run.ID)
	fmt.Fprintf(w, "Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Mode:    %s\n", run.Mode)
	fmt.Fprintf(w, "User:    %s\n", run.User)
	fmt.Fprintf(w, "File:    %s\n", run.File)
	if run.DryRun {
		fmt.Fprintln(w, "Dry run: yes")
	}
	fmt.Fprintf(w, "Ops:     %d\n\n", len(ops))

	for _, o := range ops {
		fmt.Fprintf(w, "[%s] r/%s %s\n", o.Action, o.Subreddit, o.Outcome)
		if o.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", truncateShow(o.Error, 200))
		}
	}
	return nil
}

func truncateShow(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
