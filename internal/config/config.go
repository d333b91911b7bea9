// Package config loads taskboard configuration.
//
// Values are resolved in increasing precedence: built-in defaults, the
// config file (taskboard.toml in the working directory, then in
// ~/.taskboard/), and TASKBOARD_* environment variables, where the key's
// dots become underscores (TASKBOARD_REMOTE_URL sets remote.url). Command
// line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the config file name looked up without an explicit path.
const FileName = "taskboard.toml"

// Config is the complete configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store" json:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" json:"server" yaml:"server"`
	Remote  RemoteConfig  `mapstructure:"remote" json:"remote" yaml:"remote"`
	Session SessionConfig `mapstructure:"session" json:"session" yaml:"session"`
	Sync    SyncConfig    `mapstructure:"sync" json:"sync" yaml:"sync"`
	Log     LogConfig     `mapstructure:"log" json:"log" yaml:"log"`

	// Source is the config file that was read, or "" for none.
	Source string `mapstructure:"-" json:"source,omitempty" yaml:"source,omitempty"`
}

// StoreConfig locates the embedded store.
type StoreConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// ServerConfig configures `taskboard serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`
}

// RemoteConfig selects a remote backend. An empty URL uses the embedded
// store.
type RemoteConfig struct {
	URL string `mapstructure:"url" json:"url" yaml:"url"`
}

// SessionConfig locates the persisted login.
type SessionConfig struct {
	File string `mapstructure:"file" json:"file" yaml:"file"`
}

// SyncConfig tunes the synchronization layer.
type SyncConfig struct {
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout" yaml:"fetch_timeout"`
	RefetchAfterMutation bool          `mapstructure:"refetch_after_mutation" json:"refetch_after_mutation" yaml:"refetch_after_mutation"`
}

// LogConfig controls log output.
type LogConfig struct {
	File       string `mapstructure:"file" json:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Quiet      bool   `mapstructure:"quiet" json:"quiet" yaml:"quiet"`
}

// Dir returns ~/.taskboard, or .taskboard when the home directory is
// unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskboard"
	}
	return filepath.Join(home, ".taskboard")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Store:   StoreConfig{Path: filepath.Join(dir, "taskboard.db")},
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
		Session: SessionConfig{File: filepath.Join(dir, "session.json")},
		Sync: SyncConfig{
			FetchTimeout:         30 * time.Second,
			RefetchAfterMutation: true,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("remote.url", cfg.Remote.URL)
	v.SetDefault("session.file", cfg.Session.File)
	v.SetDefault("sync.fetch_timeout", cfg.Sync.FetchTimeout)
	v.SetDefault("sync.refetch_after_mutation", cfg.Sync.RefetchAfterMutation)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.quiet", cfg.Log.Quiet)
}

// Load resolves the configuration. When path is empty the default
// locations are searched and a missing file is not an error; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would fail later in less obvious ways.
func (c *Config) Validate() error {
	if c.Store.Path == "" && c.Remote.URL == "" {
		return fmt.Errorf("invalid config: store.path or remote.url is required")
	}
	if c.Sync.FetchTimeout <= 0 {
		return fmt.Errorf("invalid config: sync.fetch_timeout must be positive, got %s", c.Sync.FetchTimeout)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("invalid config: log rotation limits must not be negative")
	}
	return nil
}

// fileConfig is the on-disk TOML layout written by Write.
type fileConfig struct {
	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`
	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`
	Remote struct {
		URL string `toml:"url"`
	} `toml:"remote"`
	Session struct {
		File string `toml:"file"`
	} `toml:"session"`
	Sync struct {
		FetchTimeout         string `toml:"fetch_timeout"`
		RefetchAfterMutation bool   `toml:"refetch_after_mutation"`
	} `toml:"sync"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Quiet      bool   `toml:"quiet"`
	} `toml:"log"`
}

// Write saves cfg as TOML at path, creating parent directories. An existing
// file is only replaced when overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if err := Encode(f, cfg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg to w in the config file format.
func Encode(w io.Writer, cfg *Config) error {
	var fc fileConfig
	fc.Store.Path = cfg.Store.Path
	fc.Server.Addr = cfg.Server.Addr
	fc.Remote.URL = cfg.Remote.URL
	fc.Session.File = cfg.Session.File
	fc.Sync.FetchTimeout = cfg.Sync.FetchTimeout.String()
	fc.Sync.RefetchAfterMutation = cfg.Sync.RefetchAfterMutation
	fc.Log.File = cfg.Log.File
	fc.Log.MaxSizeMB = cfg.Log.MaxSizeMB
	fc.Log.MaxBackups = cfg.Log.MaxBackups
	fc.Log.MaxAgeDays = cfg.Log.MaxAgeDays
	fc.Log.Quiet = cfg.Log.Quiet

	if err := toml.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
