package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/internal/liquidity"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, liquidity.DefaultConfig(), cfg.LiquidityConfig)
	assert.Equal(t, 8090, cfg.ServerConfig.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_JSONOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"liquidity": {"min_candles": 80, "session_thresholds": {"asian": 70}},
		"server": {"port": 9000}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.LiquidityConfig.MinCandles)
	assert.Equal(t, 70.0, cfg.LiquidityConfig.SessionThresholds.Asian)
	assert.Equal(t, 45.0, cfg.LiquidityConfig.SessionThresholds.Overlap)
	assert.Equal(t, 0.001, cfg.LiquidityConfig.EqualLevelTolerance)
	assert.Equal(t, 9000, cfg.ServerConfig.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisConfig.Address)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monitor:
  enabled: true
  symbols: [BTCUSDT]
  interval: 30s
liquidity:
  min_wick_ratio: 0.6
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.MonitorConfig.Enabled)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.MonitorConfig.Symbols)
	assert.Equal(t, 30*time.Second, cfg.MonitorConfig.Interval)
	assert.Equal(t, 0.6, cfg.LiquidityConfig.MinWickRatio)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("MONITOR_SYMBOLS", "btcusdt, ethusdt ,")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("MONITOR_INTERVAL", "2m")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.ServerConfig.Port)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.MonitorConfig.Symbols)
	assert.True(t, cfg.RedisConfig.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.MonitorConfig.Interval)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.LiquidityConfig.EqualLevelTolerance = 0.5
	cfg.MonitorConfig.Enabled = true
	cfg.AuthConfig.Enabled = true
	cfg.ServerConfig.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"liquidity", "monitor: symbols", "server: port", "auth: jwt_secret"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestGenerateSampleConfig_RoundTrips(t *testing.T) {
	for _, name := range []string{"sample.json", "sample.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, GenerateSampleConfig(path))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.MonitorConfig.Symbols)
			assert.Equal(t, liquidity.DefaultConfig(), cfg.LiquidityConfig)
			assert.Equal(t, time.Minute, cfg.MonitorConfig.Interval)
		})
	}
}

func TestServerConfig_Helpers(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 80, AllowedOrigins: "http://a, ,http://b"}
	assert.Equal(t, "127.0.0.1:80", s.Addr())
	assert.Equal(t, []string{"http://a", "http://b"}, s.Origins())
}
