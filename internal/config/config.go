package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from files and environment variables.
type Config struct {
	DataDir          string        `mapstructure:"data_dir"`          // directory for the snapshot and the key-value file
	Namespace        string        `mapstructure:"namespace"`         // prefix applied to every key-value key
	KVQuotaBytes     int           `mapstructure:"kv_quota_bytes"`    // size limit of the key-value file
	SnapshotKey      string        `mapstructure:"snapshot_key"`      // key-value key for the base64 snapshot fallback
	SnapshotObject   string        `mapstructure:"snapshot_object"`   // block storage object name
	BlockTimeout     time.Duration `mapstructure:"block_timeout"`     // deadline for a single block storage call
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"` // how often a dirty database is flushed
	MigrationVersion string        `mapstructure:"migration_version"` // expected classic migration marker
	CatalogPath      string        `mapstructure:"catalog_path"`      // optional classic catalog override
	Timezone         string        `mapstructure:"timezone"`          // location used for calendar days
	ReminderTime     string        `mapstructure:"reminder_time"`     // HH:MM of the daily reminder, empty disables it
	LogLevel         string        `mapstructure:"log_level"`
	TelegramToken    string        `mapstructure:"-"` // loaded from environment only
}

// Load reads .env, an optional config.yaml and WORDGO_* environment variables.
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("WORDGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram_token", "TELEGRAM_BOT_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.TelegramToken = v.GetString("telegram_token")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("namespace", "wordgo:")
	v.SetDefault("kv_quota_bytes", 5*1024*1024)
	v.SetDefault("snapshot_key", "db-snapshot")
	v.SetDefault("snapshot_object", "wordgo.sqlite")
	v.SetDefault("block_timeout", "5s")
	v.SetDefault("autosave_interval", "30s")
	v.SetDefault("migration_version", "1")
	v.SetDefault("catalog_path", "")
	v.SetDefault("timezone", "Local")
	v.SetDefault("reminder_time", "19:00")
	v.SetDefault("log_level", "info")
}

// Validate checks the values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if c.BlockTimeout <= 0 {
		return fmt.Errorf("block_timeout must be positive, got %s", c.BlockTimeout)
	}
	if c.AutosaveInterval < time.Second {
		return fmt.Errorf("autosave_interval must be at least 1s, got %s", c.AutosaveInterval)
	}
	if c.ReminderTime != "" {
		if _, err := time.Parse("15:04", c.ReminderTime); err != nil {
			return fmt.Errorf("invalid reminder_time %q: %w", c.ReminderTime, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, treating "" and "Local" as the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
