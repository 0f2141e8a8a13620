package config

import (
	"fmt"
	"strings"
)

// LogConfig controls the process log output.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Empty defers to LOG_LEVEL.
	Level string `json:"level"`
	// Format is json or console. Empty defers to APP_ENV.
	Format string `json:"format"`
}

// Validate rejects unknown levels and formats.
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}

// LoggingConfig selects where dispatch decisions are persisted. The jsonl
// backend rotates by size and age; sqlite ignores the rotation fields.
type LoggingConfig struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

const (
	defaultDispatchLogSizeMB  = 50
	defaultDispatchLogBackups = 5
	defaultDispatchLogAgeDays = 30
)

func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		if c.Backend == "sqlite" {
			c.Path = "dispatch_log.db"
		} else {
			c.Path = "dispatch_log.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = defaultDispatchLogSizeMB
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaultDispatchLogBackups
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = defaultDispatchLogAgeDays
	}
}

func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("logging: backend must be jsonl or sqlite, got %q", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("logging: path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}
