package cmd

import (
	"fmt"
	"os"

	"resub/internal/store"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Start keeping a history of runs in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}

		if store.Exists(dir) {
			fmt.Printf("Already initialized, %s exists\n", store.Path(dir))
			return nil
		}

		st, err := store.New(dir)
		if err != nil {
			return fmt.Errorf("init failed: %w", err)
		}
		st.Close()

		fmt.Printf("Initialized resub history in %s\n", dir)
		fmt.Printf("Runs will be recorded in %s/%s\n", store.DirName, store.DBName)
		return nil
	},
}
