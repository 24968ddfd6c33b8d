package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadfunnel/leadfunnel/internal/server"
	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the leadfunnel HTTP server and the idle-session reaper.

The server provides:
  - Funnel API for published funnels (definition, next step, variants)
  - Session tracking and submission endpoints
  - Dashboard for viewing results
  - Health check and Prometheus metrics

Example:
  lf serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config and LF_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if port != 0 {
		cfg.Server.Port = port
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()
	defer logger.Sync()

	srv := server.New(s, cfg.Server.Port, tokenFilePath(),
		server.WithLogger(logger),
		server.WithStickyVariants(cfg.Variants.Sticky),
	)
	reaper := tracking.NewReaper(s, cfg.Tracking.AbandonAfter, cfg.Tracking.ReapInterval, logger.Named("reaper"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printStartup(cmd, srv)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		return reaper.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", zap.Error(err))
		return err
	}
	return nil
}

func printStartup(cmd *cobra.Command, srv *server.Server) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "leadfunnel running on http://localhost:%d\n", srv.Port())
	fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", srv.Port(), srv.Token())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  import <file>    Load a funnel definition")
	fmt.Fprintln(out, "  publish <id>     Make a funnel visible to visitors")
	fmt.Fprintln(out, "  results <id>     Show funnel and A/B statistics")
	fmt.Fprintln(out, "  token            Show dashboard URL")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
