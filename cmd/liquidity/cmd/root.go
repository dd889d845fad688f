package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/logging"
)

var (
	cfgFile string
	envFile string

	// cfg is loaded before every command that needs it
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "liquidity",
	Short: "Liquidity sweep and market structure signal engine",
	Long: `Liquidity detects liquidity pools, their sweeps and the structure shift that
follows, and scores the combination into trade signals.

It provides tools for:
  - Analyzing a CSV of candles once or replaying it candle by candle
  - Serving the engine over HTTP and WebSocket
  - Monitoring a directory of candle files on an interval
  - Generating and validating configuration files`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file (JSON, or YAML by extension)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
}

// loadConfig reads the dotenv file, the configuration and sets up logging
func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logging.SetDefault(logging.New(cfg.LoggingConfig.ToLogging(cmd.Name())))
	return nil
}
