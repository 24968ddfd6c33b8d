package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/config"
	"github.com/leadfunnel/leadfunnel/internal/logging"
)

var (
	dbPath     string
	configPath string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "lf",
	Short: "leadfunnel - a self-hosted engine for scored, A/B tested lead funnels",
	Long: `leadfunnel runs multi-step lead funnels: scored questions, segment routing,
per-step A/B variants and anonymous session tracking.
Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'lf serve').`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config and LF_DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config and LF_PORT)")
}

// loadConfig resolves defaults < YAML < environment < flags and builds the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.DBPath = dbPath
	}
	cfg = c

	l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = l
	return nil
}
