package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/notification"
)

// DefaultPath is read by Load when no path is given
const DefaultPath = "config.json"

type Config struct {
	LoggingConfig      LoggingConfig             `json:"logging" yaml:"logging"`
	LiquidityConfig    liquidity.LiquidityConfig `json:"liquidity" yaml:"liquidity"`
	MarketDataConfig   MarketDataConfig          `json:"market_data" yaml:"market_data"`
	MonitorConfig      MonitorConfig             `json:"monitor" yaml:"monitor"`
	NotificationConfig NotificationConfig        `json:"notification" yaml:"notification"`
	ServerConfig       ServerConfig              `json:"server" yaml:"server"`
	AuthConfig         AuthConfig                `json:"auth" yaml:"auth"`
	RedisConfig        RedisConfig               `json:"redis" yaml:"redis"`
	DatabaseConfig     DatabaseConfig            `json:"database" yaml:"database"`
	JournalConfig      JournalConfig             `json:"journal" yaml:"journal"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
}

// ToLogging converts the section to the logging package config
func (c LoggingConfig) ToLogging(component string) *logging.Config {
	return &logging.Config{
		Level:       c.Level,
		Output:      c.Output,
		Component:   component,
		IncludeFile: c.IncludeFile,
		JSONFormat:  c.JSONFormat,
	}
}

// MarketDataConfig tells the CLI and the monitor where candles come from
type MarketDataConfig struct {
	Directory string `json:"directory" yaml:"directory"` // one <SYMBOL>.csv per instrument
	Timeframe string `json:"timeframe" yaml:"timeframe"` // e.g. "15m", "1h"
	HTF       string `json:"htf" yaml:"htf"`             // resampled timeframe for HTF pools, empty disables
}

type MonitorConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Symbols      []string      `json:"symbols" yaml:"symbols"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	MaxFailures  int           `json:"max_failures" yaml:"max_failures"` // consecutive failures before a symbol is paused
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
	CleanupEvery time.Duration `json:"cleanup_every" yaml:"cleanup_every"`
}

type NotificationConfig struct {
	Enabled  bool                        `json:"enabled" yaml:"enabled"`
	MinScore float64                     `json:"min_score" yaml:"min_score"`
	Telegram notification.TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  notification.DiscordConfig  `json:"discord" yaml:"discord"`
}

type ServerConfig struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"` // CORS allowed origins, comma separated
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout"`       // Seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout"`     // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr is the listen address of the API server
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits AllowedOrigins
func (c ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AuthConfig guards /api/v1 and /ws with HS256 bearer tokens
type AuthConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
}

// RedisConfig holds Redis configuration for the snapshot cache
type RedisConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Address  string        `json:"address" yaml:"address"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	PoolSize int           `json:"pool_size" yaml:"pool_size"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"` // zero derives the TTL from the timeframe
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// DSN builds the connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns a configuration that runs with no external services
func Default() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{
			Level:  "INFO",
			Output: "stdout",
		},
		LiquidityConfig: liquidity.DefaultConfig(),
		MarketDataConfig: MarketDataConfig{
			Directory: "data",
			Timeframe: "15m",
			HTF:       "4h",
		},
		MonitorConfig: MonitorConfig{
			Interval:     time.Minute,
			MaxRetries:   3,
			MaxFailures:  5,
			Cooldown:     5 * time.Minute,
			CleanupEvery: time.Hour,
		},
		ServerConfig: ServerConfig{
			Port:            8090,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     15,
			WriteTimeout:    15,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			Issuer: "liquidity-hunter",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "liquidity",
			Database: "liquidity",
			SSLMode:  "disable",
		},
		JournalConfig: JournalConfig{
			Path: "journal.db",
		},
	}
}

// Load reads path (JSON, or YAML by extension) over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)
	cfg.LiquidityConfig = liquidity.LoadConfig(&cfg.LiquidityConfig)

	return cfg, nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if res := liquidity.ValidateConfig(c.LiquidityConfig); !res.IsValid {
		result = multierror.Append(result, fmt.Errorf("liquidity: %w", res.Err()))
	}
	if c.MonitorConfig.Enabled {
		if len(c.MonitorConfig.Symbols) == 0 {
			result = multierror.Append(result, fmt.Errorf("monitor: symbols must not be empty"))
		}
		if c.MonitorConfig.Interval <= 0 {
			result = multierror.Append(result, fmt.Errorf("monitor: interval must be positive"))
		}
	}
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server: port %d out of range", c.ServerConfig.Port))
	}
	if c.AuthConfig.Enabled && len(c.AuthConfig.JWTSecret) < 16 {
		result = multierror.Append(result, fmt.Errorf("auth: jwt_secret must be at least 16 characters"))
	}
	if c.RedisConfig.Enabled && c.RedisConfig.Address == "" {
		result = multierror.Append(result, fmt.Errorf("redis: address is required"))
	}
	if c.DatabaseConfig.Enabled && c.DatabaseConfig.Database == "" {
		result = multierror.Append(result, fmt.Errorf("database: database name is required"))
	}
	if c.JournalConfig.Enabled && c.JournalConfig.Path == "" {
		result = multierror.Append(result, fmt.Errorf("journal: path is required"))
	}
	return result.ErrorOrNil()
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Market data config
	cfg.MarketDataConfig.Directory = getEnvOrDefault("MARKET_DATA_DIR", cfg.MarketDataConfig.Directory)
	cfg.MarketDataConfig.Timeframe = getEnvOrDefault("MARKET_DATA_TIMEFRAME", cfg.MarketDataConfig.Timeframe)

	// Monitor config
	cfg.MonitorConfig.Enabled = getEnvBoolOrDefault("MONITOR_ENABLED", cfg.MonitorConfig.Enabled)
	if symbols := os.Getenv("MONITOR_SYMBOLS"); symbols != "" {
		cfg.MonitorConfig.Symbols = nil
		for _, s := range strings.Split(symbols, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				cfg.MonitorConfig.Symbols = append(cfg.MonitorConfig.Symbols, s)
			}
		}
	}
	cfg.MonitorConfig.Interval = getEnvDurationOrDefault("MONITOR_INTERVAL", cfg.MonitorConfig.Interval)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.MinScore = getEnvFloatOrDefault("NOTIFICATIONS_MIN_SCORE", cfg.NotificationConfig.MinScore)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("CORS_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Journal config
	cfg.JournalConfig.Enabled = getEnvBoolOrDefault("JOURNAL_ENABLED", cfg.JournalConfig.Enabled)
	cfg.JournalConfig.Path = getEnvOrDefault("JOURNAL_PATH", cfg.JournalConfig.Path)
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file, YAML when the
// name ends in .yaml or .yml
func GenerateSampleConfig(filename string) error {
	config := Default()
	config.MonitorConfig.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	config.NotificationConfig.MinScore = 60
	config.NotificationConfig.Telegram = notification.TelegramConfig{BotToken: "", ChatID: ""}
	config.NotificationConfig.Discord = notification.DiscordConfig{WebhookURL: ""}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
