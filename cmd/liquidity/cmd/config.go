package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"liquidity-hunter/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a sample configuration file
  validate - Validate a configuration file, environment overrides included

Examples:
  liquidity config init -o config.yaml
  liquidity config validate -c config.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a sample configuration file",
	Long: `Create a new configuration file with default settings. The format follows
the extension: .yaml and .yml produce YAML, anything else JSON.`,
	// no configuration needs to exist yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", config.DefaultPath, "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.GenerateSampleConfig(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created sample configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  liquidity serve -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", cfgFile)
	fmt.Fprintf(out, "  Server:   %s\n", cfg.ServerConfig.Addr())
	fmt.Fprintf(out, "  Monitor:  %s\n", enabled(cfg.MonitorConfig.Enabled, strings.Join(cfg.MonitorConfig.Symbols, ",")))
	fmt.Fprintf(out, "  Redis:    %s\n", enabled(cfg.RedisConfig.Enabled, cfg.RedisConfig.Address))
	fmt.Fprintf(out, "  Postgres: %s\n", enabled(cfg.DatabaseConfig.Enabled, cfg.DatabaseConfig.Database))
	fmt.Fprintf(out, "  Journal:  %s\n", enabled(cfg.JournalConfig.Enabled, cfg.JournalConfig.Path))
	fmt.Fprintf(out, "  Auth:     %s\n", enabled(cfg.AuthConfig.Enabled, cfg.AuthConfig.Issuer))
	return nil
}

func enabled(on bool, detail string) string {
	if !on {
		return "disabled"
	}
	if detail == "" {
		return "enabled"
	}
	return "enabled (" + detail + ")"
}
