// Package config provides configuration management for the acquisition
// engine. It handles loading, validating and saving engine settings from a
// YAML file and provides sensible defaults for everything not set.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultMaxConcurrent   = 3
	DefaultChunkSize       = 4 << 20 // 4 MiB
	DefaultMaxRetries      = 3
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultPublishInterval = time.Second
	DefaultJobRetention    = time.Hour
	DefaultUserAgent       = "modelfetch/1.0"
	DefaultListenAddr      = ":8199"
)

// Config represents the engine configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// Settings represents general engine settings.
type Settings struct {
	// ModelDir is the root of the installed model tree.
	ModelDir string `yaml:"model_dir,omitempty"`
	// TempDir holds in-flight partial downloads. Defaults to
	// <model_dir>/.tmp so the final rename stays on one filesystem.
	TempDir string `yaml:"temp_dir,omitempty"`
	// CatalogPath points at the preset catalog document.
	CatalogPath string `yaml:"catalog_path,omitempty"`

	// Transfer settings.
	MaxConcurrent int           `yaml:"max_concurrent"`
	ChunkSize     int64         `yaml:"chunk_size"`
	MaxRetries    int           `yaml:"max_retries"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	// JobTimeout bounds a whole job; zero disables the guard.
	JobTimeout time.Duration `yaml:"job_timeout,omitempty"`
	UserAgent  string        `yaml:"user_agent,omitempty"`

	// Progress settings.
	PublishInterval time.Duration `yaml:"publish_interval"`
	JobRetention    time.Duration `yaml:"job_retention"`

	// API settings.
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// Output settings.
	LogLevel string `yaml:"log_level"` // error, warn, info, debug
}

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			MaxConcurrent:   DefaultMaxConcurrent,
			ChunkSize:       DefaultChunkSize,
			MaxRetries:      DefaultMaxRetries,
			HTTPTimeout:     DefaultHTTPTimeout,
			PublishInterval: DefaultPublishInterval,
			JobRetention:    DefaultJobRetention,
			UserAgent:       DefaultUserAgent,
			ListenAddr:      DefaultListenAddr,
			LogLevel:        "info",
		},
	}
}

// LoadConfig reads and validates a configuration file. Missing fields fall
// back to defaults; a missing file is an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.Wrap(errors.ErrInvalidPath, "config file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	s := &c.Settings
	if s.ModelDir == "" {
		return errors.Wrap(errors.ErrConfigValidation, "model_dir must be set")
	}
	if !filepath.IsAbs(s.ModelDir) {
		return errors.Wrapf(errors.ErrConfigValidation, "model_dir must be absolute: %s", s.ModelDir)
	}
	if s.TempDir != "" && !filepath.IsAbs(s.TempDir) {
		return errors.Wrapf(errors.ErrConfigValidation, "temp_dir must be absolute: %s", s.TempDir)
	}
	if s.CatalogPath == "" {
		return errors.Wrap(errors.ErrConfigValidation, "catalog_path must be set")
	}
	if s.MaxConcurrent <= 0 {
		return errors.Wrapf(errors.ErrConfigValidation, "max_concurrent must be positive, got %d", s.MaxConcurrent)
	}
	if s.ChunkSize < 64<<10 {
		return errors.Wrapf(errors.ErrConfigValidation, "chunk_size must be at least 64KiB, got %d", s.ChunkSize)
	}
	if s.MaxRetries < 0 {
		return errors.Wrapf(errors.ErrConfigValidation, "max_retries cannot be negative, got %d", s.MaxRetries)
	}
	return nil
}

// GetDefaultConfigPath returns the per-user config file location.
func GetDefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to determine user config directory")
	}
	return filepath.Join(dir, "modelfetch", "config.yaml"), nil
}

// GetTempDir returns the temp namespace, defaulting to a dot directory under
// the model tree so renames never cross filesystems.
func (c *Config) GetTempDir() string {
	if c.Settings.TempDir != "" {
		return c.Settings.TempDir
	}
	return filepath.Join(c.Settings.ModelDir, ".tmp")
}

// Save writes the configuration to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	return os.WriteFile(path, data, 0o644)
}
