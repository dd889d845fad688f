package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"liquidity-hunter/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Token signs a bearer token with auth.jwt_secret. Read tokens may query state
and open /ws; write tokens may also post candles and import snapshots.

Example:
  liquidity token --subject dashboard --scope read --ttl 720h`,
	RunE: runToken,
}

var (
	tokSubject string
	tokScopes  []string
	tokTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().StringSliceVar(&tokScopes, "scope", []string{auth.ScopeRead}, "scopes (read, write)")
	tokenCmd.Flags().DurationVar(&tokTTL, "ttl", 24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if len(cfg.AuthConfig.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	for _, s := range tokScopes {
		if s != auth.ScopeRead && s != auth.ScopeWrite {
			return fmt.Errorf("unknown scope %q", s)
		}
	}

	m := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)
	token, err := m.GenerateToken(tokSubject, tokScopes, tokTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
