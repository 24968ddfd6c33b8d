package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

func init() {
	rootCmd.AddCommand(newReapCmd())
}

func newReapCmd() *cobra.Command {
	var idle time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Mark idle sessions as abandoned",
		Long: `Run one pass of the idle-session reaper. 'lf serve' does this
continuously; use this command for cron-style setups.

Example:
  lf reap --idle 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if idle <= 0 {
				idle = cfg.Tracking.AbandonAfter
			}
			return withStore(func(s *store.SQLiteStore) error {
				reaper := tracking.NewReaper(s, idle, cfg.Tracking.ReapInterval, logger)
				n, err := reaper.ReapOnce(context.Background())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d session(s) idle for over %s as abandoned\n", n, idle)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&idle, "idle", 0, "idle time before a session counts as abandoned (default from config)")
	return cmd
}
