// Package config loads psync runtime configuration.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional psync.yaml or psync.toml file, and PSYNC_* environment variables
// (PSYNC_WATCH_DEBOUNCE overrides watch.debounce).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FileName is the config file name searched for without an extension.
	FileName = "psync"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PSYNC"
)

// ErrInvalidConfig is returned when a loaded setting is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full runtime configuration.
type Config struct {
	Watch        WatchConfig        `mapstructure:"watch"`
	DynamicFiles DynamicFilesConfig `mapstructure:"dynamic_files"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Log          LogConfig          `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// WatchConfig controls file-watch notifications.
type WatchConfig struct {
	// Debounce is the fixed delay between the last change to a referenced
	// file and its ReferenceChanged notification.
	Debounce time.Duration `mapstructure:"debounce"`
}

// DynamicFilesConfig controls dynamic-file refreshes.
type DynamicFilesConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// SyncConfig controls manifest syncing.
type SyncConfig struct {
	// Concurrency is the number of projects populated at once.
	Concurrency int `mapstructure:"concurrency"`
}

// JournalConfig controls the change journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DashboardConfig controls the websocket dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	// Port 0 picks a free port.
	Port int `mapstructure:"port"`
}

// LogConfig controls where logs go. An empty File means stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.debounce", 5*time.Second)
	v.SetDefault("dynamic_files.debounce", 200*time.Millisecond)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(".psync", "journal.db"))
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 0)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// The defaults are constants; failing to decode them is a bug.
		panic(err)
	}
	return cfg
}

// Load reads configuration. If path is empty, psync.{yaml,toml} is looked
// up in dir and its absence is not an error. An explicit path must exist.
func Load(path, dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is in range.
func (c *Config) Validate() error {
	var problems []error
	if c.Watch.Debounce < 0 {
		problems = append(problems, fmt.Errorf("watch.debounce must not be negative, got %v", c.Watch.Debounce))
	}
	if c.DynamicFiles.Debounce < 0 {
		problems = append(problems, fmt.Errorf("dynamic_files.debounce must not be negative, got %v", c.DynamicFiles.Debounce))
	}
	if c.Sync.Concurrency < 1 {
		problems = append(problems, fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		problems = append(problems, errors.New("journal.path is required when the journal is enabled"))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		problems = append(problems, fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port))
	}
	if c.Log.MaxSizeMB < 1 {
		problems = append(problems, fmt.Errorf("log.max_size_mb must be at least 1, got %d", c.Log.MaxSizeMB))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
