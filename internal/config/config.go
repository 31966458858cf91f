package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Audit   AuditConfig   `yaml:"audit"`
	AuditDB AuditDBConfig `yaml:"audit_db"`
	Log     LogConfig     `yaml:"log"`
}

// AuditConfig locates the append-only audit file.
type AuditConfig struct {
	// Root is the directory holding the audit file. LOG_ROOT overrides it.
	Root string `yaml:"root"`
	// File is the audit file name inside Root.
	File string `yaml:"file"`
}

// AuditDBConfig locates the optional sqlite post-mortem index.
type AuditDBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditPath returns the full path of the audit file.
func (c *Config) AuditPath() string {
	return filepath.Join(c.Audit.Root, c.Audit.File)
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SIDECAR_CONFIG_PATH", "config/sidecar.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Audit: AuditConfig{
			Root: "./log",
			File: "sidecar-audit.edn",
		},
		AuditDB: AuditDBConfig{
			Path: "data/sidecar-audit.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_ROOT"); v != "" {
		cfg.Audit.Root = v
	}
	if v := os.Getenv("SIDECAR_AUDIT_DB_PATH"); v != "" {
		cfg.AuditDB.Path = v
	}
	if v := os.Getenv("SIDECAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SIDECAR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
