// Package config loads the server's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is used when no config path is given.
const DefaultConfigFile = "config.yaml"

// AppConfig holds command-line inputs for server startup.
type AppConfig struct {
	ConfigPath string
}

// DatabaseConfig selects the backing database.
type DatabaseConfig struct {
	// DSN is either a PostgreSQL URL or a SQLite file path.
	DSN string `yaml:"dsn"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls log output and rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// EnforcementConfig tunes enforcement checks.
type EnforcementConfig struct {
	// CheckTimeoutSeconds bounds one enforcement check; expiry fails open.
	CheckTimeoutSeconds int `yaml:"check-timeout-seconds"`
	// ExpensiveModels seeds the restrict_expensive model list until a
	// database setting overrides it.
	ExpensiveModels []string `yaml:"expensive-models"`
}

// CheckTimeout returns the enforcement check timeout as a duration.
func (e EnforcementConfig) CheckTimeout() time.Duration {
	return time.Duration(e.CheckTimeoutSeconds) * time.Second
}

// FileConfig is the full on-disk configuration.
type FileConfig struct {
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
}

// ResolveConfigPath normalizes a config path, defaulting to
// DefaultConfigFile in the working directory.
func ResolveConfigPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultConfigFile
	}
	if abs, errAbs := filepath.Abs(path); errAbs == nil {
		return abs
	}
	return path
}

// Load reads and validates the configuration file.
func Load(path string) (*FileConfig, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	cfg := &FileConfig{}
	if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":8318"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Enforcement.CheckTimeoutSeconds <= 0 {
		cfg.Enforcement.CheckTimeoutSeconds = 5
	}
	return cfg, nil
}

// LoadDatabaseDSN reads only the database DSN from the configuration file.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, errLoad := Load(path)
	if errLoad != nil {
		return "", errLoad
	}
	return cfg.Database.DSN, nil
}
