package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/logging"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the candle directory without serving HTTP",
	Long: `Monitor reads <market_data.directory>/<SYMBOL>.csv for every configured
symbol on each interval and forwards new signals to the configured sinks
(PostgreSQL, SQLite journal, Redis, Telegram, Discord).

Examples:
  liquidity monitor -c config.yaml
  liquidity monitor --once --dump out/`,
	RunE: runMonitor,
}

var (
	monOnce bool
	monDump string
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().BoolVar(&monOnce, "once", false, "poll once and exit")
	monitorCmd.Flags().StringVar(&monDump, "dump", "", "after --once, write every symbol's state to this directory")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg.MonitorConfig.Enabled = true
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.buildMonitor()
	if err != nil {
		return err
	}
	if err := svc.Restore(ctx); err != nil {
		logging.Warn("Some snapshots were not restored", "error", err.Error())
	}

	if monOnce {
		runErr := svc.RunOnce(ctx)
		if monDump != "" {
			if err := dumpStates(a.registry, monDump); err != nil {
				return err
			}
		}
		return runErr
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return svc.Stop()
}

func dumpStates(registry *engine.Registry, dir string) error {
	for _, symbol := range registry.Symbols() {
		err := registry.With(symbol, func(e *engine.Engine) error {
			return writeJSONFile(filepath.Join(dir, symbol+".json"), e.Store().GetState())
		})
		if err != nil {
			return fmt.Errorf("dump %s: %w", symbol, err)
		}
	}
	return nil
}
