package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"liquidity-hunter/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP and WebSocket",
	Long: `Serve starts the HTTP API and the /ws event stream. When monitor.enabled is
set, the candle directory is polled in the background as well and its results
are served alongside the ones posted to /api/v1/analyze.

Example:
  liquidity serve -c config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MonitorConfig.Enabled {
		svc, err := a.buildMonitor()
		if err != nil {
			return err
		}
		if err := svc.Restore(ctx); err != nil {
			logging.Warn("Some snapshots were not restored", "error", err.Error())
		}
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer svc.Stop()
	}

	server := a.buildServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutdown signal received")
	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
