package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"resub/internal/config"
	"resub/internal/logger"

	"github.com/spf13/cobra"
)

var (
	flagUser   string
	flagFile   string
	flagDebug  bool
	flagImport bool

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Reddit username (default $REDDIT_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&flagFile, "file", "f", "", "snapshot file to export to / import from (default <user>.subs)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")
	rootCmd.Flags().BoolVarP(&flagImport, "import", "i", false, "subscribe to the subreddits in the snapshot instead of exporting")
}

var rootCmd = &cobra.Command{
	Use:   "resub",
	Short: "Resubscribe to your old subreddits",
	Long: `resub saves the list of subreddits a Reddit account is subscribed to
and can later re-apply that list, subscribing and unsubscribing only
where the account differs from the snapshot.

Without a subcommand it exports, or imports when -i is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logger.Init(flagDebug || cfg.Debug)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagImport {
			return runImport(cmd.Context(), false)
		}
		return runExport(cmd.Context(), false)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
