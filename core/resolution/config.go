package resolution

import (
	"fmt"
	"time"
)

// Config holds the auto-resolution settings.
type Config struct {
	DelaySeconds int `json:"delay_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DelaySeconds <= 0 {
		c.DelaySeconds = 300
	}
}

// Validate checks the configured delay.
func (c Config) Validate() error {
	if c.DelaySeconds < 0 {
		return fmt.Errorf("resolution: delay_seconds must not be negative")
	}
	return nil
}

// Delay returns the on-site time before a fault is resolved.
func (c Config) Delay() time.Duration {
	if c.DelaySeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.DelaySeconds) * time.Second
}
