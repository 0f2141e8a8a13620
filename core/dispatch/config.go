package dispatch

import (
	"fmt"
	"time"
)

// Strategy names.
const (
	StrategyRule      = "rule"
	StrategyPredictor = "predictor"
)

// Config defines dispatch-related settings.
type Config struct {
	Strategy             string `json:"strategy"`
	AckTimeoutSeconds    int    `json:"ack_timeout_seconds"`
	ExclusionTTLSeconds  int    `json:"exclusion_ttl_seconds"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
	QueueSize            int    `json:"queue_size"`
	Workers              int    `json:"workers"`
	// Prototype admits vehicles without acknowledgment hardware. It is
	// copied from the top-level mode section.
	Prototype bool `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyRule
	}
	if c.AckTimeoutSeconds <= 0 {
		c.AckTimeoutSeconds = 60
	}
	if c.ExclusionTTLSeconds <= 0 {
		c.ExclusionTTLSeconds = 600
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 30
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Validate checks the strategy name.
func (c Config) Validate() error {
	if c.Strategy != StrategyRule && c.Strategy != StrategyPredictor {
		return fmt.Errorf("dispatch: unknown strategy %s", c.Strategy)
	}
	return nil
}

func (c Config) ackTimeout() time.Duration {
	if c.AckTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

func (c Config) exclusionTTL() time.Duration {
	if c.ExclusionTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.ExclusionTTLSeconds) * time.Second
}

func (c Config) sweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
