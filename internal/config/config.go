// Package config provides configuration management for the watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "marketwatch/internal/errors"
	"marketwatch/internal/scheduler"
)

// Config holds all application configuration.
type Config struct {
	Exchange      ExchangeConfig     `mapstructure:"exchange"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Data          DataConfig         `mapstructure:"data"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Jobs          []JobConfig        `mapstructure:"jobs"`
}

// ExchangeConfig holds exchange session configuration.
type ExchangeConfig struct {
	Zone             string  `mapstructure:"zone"`
	IndexSymbol      string  `mapstructure:"index_symbol"`
	WeakThresholdPct float64 `mapstructure:"weak_threshold_pct"`
}

// SchedulerConfig holds dispatch loop configuration.
type SchedulerConfig struct {
	Tick    time.Duration `mapstructure:"tick"`
	StateDB string        `mapstructure:"state_db"`
}

// DataConfig holds snapshot storage and data source configuration.
type DataConfig struct {
	Dir       string `mapstructure:"dir"`
	SourceURL string `mapstructure:"source_url"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	RetryAttempts int            `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration  `mapstructure:"retry_delay"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram channel configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// JobConfig is one row of the configured cadence table.
type JobConfig struct {
	Name    string `mapstructure:"name"`
	Cadence string `mapstructure:"cadence"`
	Gate    string `mapstructure:"gate"`
	Serial  bool   `mapstructure:"serial"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/marketwatch"
	}
	return filepath.Join(home, ".config", "marketwatch")
}

// Default returns the built-in defaults applied before the config file.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Zone:             "America/New_York",
			IndexSymbol:      "SPY",
			WeakThresholdPct: 1.0,
		},
		Scheduler: SchedulerConfig{
			Tick: 30 * time.Second,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Notifications: NotificationConfig{
			Enabled:       true,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETWATCH_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("MARKETWATCH_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("MARKETWATCH_SOURCE_URL"); v != "" {
		cfg.Data.SourceURL = v
	}
	if v := os.Getenv("MARKETWATCH_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
}

// Validate rejects configurations the scheduler could not run: unknown
// cadence or gating strings, non-positive tick, missing data dir.
func (c *Config) Validate() error {
	if c.Scheduler.Tick <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "scheduler tick must be positive")
	}
	if c.Data.Dir == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "data dir required")
	}
	if c.Exchange.Zone == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "exchange zone required")
	}
	if c.Exchange.WeakThresholdPct < 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "weak threshold must not be negative")
	}
	if c.Notifications.RetryAttempts <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "notification retry attempts must be positive")
	}

	seen := make(map[string]bool)
	for _, job := range c.Jobs {
		if job.Name == "" {
			return apperrors.Wrap(apperrors.ErrConfigInvalid, "job name required")
		}
		if seen[job.Name] {
			return apperrors.Wrapf(apperrors.ErrConfigInvalid, "duplicate job %s", job.Name)
		}
		seen[job.Name] = true
		if _, err := scheduler.ParseCadence(job.Cadence); err != nil {
			return apperrors.Wrapf(err, "job %s", job.Name)
		}
		if job.Gate != "" {
			if _, err := scheduler.ParseGate(job.Gate); err != nil {
				return apperrors.Wrapf(err, "job %s", job.Name)
			}
		}
	}
	return nil
}

// StateDBPath returns the configured job state database path, defaulting
// to marketwatch.db under the config directory.
func (c *Config) StateDBPath(configDir string) string {
	if c.Scheduler.StateDB != "" {
		return c.Scheduler.StateDB
	}
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "marketwatch.db")
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	template := `# marketwatch configuration

[exchange]
zone = "America/New_York"
index_symbol = "SPY"
weak_threshold_pct = 1.0

[scheduler]
tick = "30s"
# state_db = "/path/to/marketwatch.db"

[data]
dir = "data"
source_url = ""

[notifications]
enabled = true
retry_attempts = 3
retry_delay = "2s"

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

# Override the built-in cadence table per job:
# [[jobs]]
# name = "refresh_market"
# cadence = "interval:5m"
# gate = "open-only"
# serial = true
`

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(template), 0644)
}
