// Package config loads ahdb settings and the persisted sync state.
//
// Settings come from, in increasing precedence: built-in defaults, the YAML
// config file, AHDB_* environment variables and bound command-line flags.
// Nested keys map to environment variables with "." replaced by "_", so
// catalog.base_url is read from AHDB_CATALOG_BASE_URL.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config and data directories.
const AppName = "ahdb"

// Config is the effective configuration.
type Config struct {
	DBPath         string        `mapstructure:"db_path" yaml:"db_path"`
	Language       string        `mapstructure:"language" yaml:"language"`
	Platform       string        `mapstructure:"platform" yaml:"platform,omitempty"`
	MaxInsert      int           `mapstructure:"max_insert" yaml:"max_insert"`
	TabooMaxInsert int           `mapstructure:"taboo_max_insert" yaml:"taboo_max_insert"`
	ClearCache     bool          `mapstructure:"clear_cache" yaml:"clear_cache"`
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`
	RulesDir       string        `mapstructure:"rules_dir" yaml:"rules_dir,omitempty"`
	StatePath      string        `mapstructure:"state_path" yaml:"state_path"`
	FaqTTL         time.Duration `mapstructure:"faq_ttl" yaml:"faq_ttl"`

	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Daemon    DaemonConfig    `mapstructure:"daemon" yaml:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// CatalogConfig configures the ArkhamDB client.
type CatalogConfig struct {
	// BaseURL pins every request to one origin, e.g. a mirror
	BaseURL string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Host    string        `mapstructure:"host" yaml:"host"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DaemonConfig configures background sync.
type DaemonConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// DashboardConfig configures the event stream server.
type DashboardConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LogConfig configures log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// XDGConfigHome returns XDG_CONFIG_HOME or ~/.config.
func XDGConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns XDG_DATA_HOME or ~/.local/share.
func XDGDataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(XDGConfigHome(), AppName, "config.yaml")
}

// DataDir returns the directory holding the cache database and sync state.
func DataDir() string {
	return filepath.Join(XDGDataHome(), AppName)
}

// SetDefaults registers every key with its default so environment
// variables are honored for keys absent from the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(DataDir(), "cards.db"))
	v.SetDefault("language", "")
	v.SetDefault("platform", "")
	v.SetDefault("max_insert", 8)
	v.SetDefault("taboo_max_insert", 4)
	v.SetDefault("clear_cache", true)
	v.SetDefault("verbose", false)
	v.SetDefault("rules_dir", "")
	v.SetDefault("state_path", filepath.Join(DataDir(), "state.toml"))
	v.SetDefault("faq_ttl", 24*time.Hour)

	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.host", "arkhamdb.com")
	v.SetDefault("catalog.timeout", 30*time.Second)

	v.SetDefault("daemon.interval", 6*time.Hour)
	v.SetDefault("daemon.max_backoff", time.Hour)

	v.SetDefault("dashboard.port", 8080)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Init prepares v to read path (DefaultPath when empty) and the AHDB_
// environment.
func Init(v *viper.Viper, path string) {
	SetDefaults(v)
	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AHDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file, if any, and decodes the effective settings.
// A missing file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", v.ConfigFileUsed(), err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Language = ResolveLanguage(cfg.Language)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.MaxInsert < 0 || c.TabooMaxInsert < 0 {
		return fmt.Errorf("config: insert chunk sizes must not be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("config: dashboard.port %d out of range", c.Dashboard.Port)
	}
	if c.Daemon.Interval < 0 || c.Daemon.MaxBackoff < 0 {
		return fmt.Errorf("config: daemon durations must not be negative")
	}
	return nil
}

// YAML renders the config as it would be written to the config file.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// Write stores the config as YAML at path, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
