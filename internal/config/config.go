// Package config loads and validates the TOML application configuration.
// Secrets never live here — the credential file is managed by credstore.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// appDirName is the directory under the user config dir holding the config
// file, credential file, and run catalog.
const appDirName = "drivestash"

// Config is the application configuration.
type Config struct {
	// BackupRoot is the name of the top-level remote folder all backups
	// live under.
	BackupRoot string `toml:"backup_root"`

	// RetentionDays is the default retention window for prune.
	RetentionDays int `toml:"retention_days"`

	// UploadWorkers bounds concurrent per-file uploads during push.
	UploadWorkers int `toml:"upload_workers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// CredentialsPath overrides the default credential file location.
	CredentialsPath string `toml:"credentials_path"`

	// CatalogPath overrides the default run catalog location.
	CatalogPath string `toml:"catalog_path"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		BackupRoot:    "Backups",
		RetentionDays: 30,
		UploadWorkers: 4,
		LogLevel:      "info",
	}
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal — silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config with all defaults. Supports the zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// validate rejects configurations no command could run with.
func (c *Config) validate() error {
	if c.BackupRoot == "" {
		return errors.New("backup_root must not be empty")
	}

	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got %d", c.RetentionDays)
	}

	if c.UploadWorkers < 1 {
		return fmt.Errorf("upload_workers must be at least 1, got %d", c.UploadWorkers)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(appDir(), "config.toml")
}

// ResolveCredentialsPath returns the credential file location: the
// configured override, or the default next to the config file.
func (c *Config) ResolveCredentialsPath() string {
	if c.CredentialsPath != "" {
		return c.CredentialsPath
	}

	return filepath.Join(appDir(), "credentials")
}

// ResolveCatalogPath returns the run catalog location: the configured
// override, or the default next to the config file.
func (c *Config) ResolveCatalogPath() string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}

	return filepath.Join(appDir(), "catalog.db")
}

// appDir returns the application directory under the user config dir,
// falling back to a dotdir in $HOME when the platform dir is unavailable.
func appDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "." + appDirName
		}

		return filepath.Join(home, "."+appDirName)
	}

	return filepath.Join(base, appDirName)
}
