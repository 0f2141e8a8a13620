// Package simulator drives fake vehicles over MQTT: it answers dispatch
// orders with acknowledgments and reports positions along the ordered
// route.
package simulator

import (
	"fmt"
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// Config holds parameters for the simulator.
type Config struct {
	Count       int
	TopicPrefix string
	Center      model.Point
	// SpreadM is the radius around Center where vehicles start.
	SpreadM float64
	// HardwarePct is the share of vehicles able to acknowledge orders.
	HardwarePct float64
	SpeedKMH    float64
	Interval    time.Duration
	AckLatency  time.Duration
	DropRate    float64
	Seed        int64
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Count <= 0 {
		c.Count = 1
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "fleet"
	}
	if c.SpreadM <= 0 {
		c.SpreadM = 3000
	}
	if c.SpeedKMH <= 0 {
		c.SpeedKMH = 40
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if err := c.Center.Validate(); err != nil {
		return fmt.Errorf("center: %w", err)
	}
	if c.HardwarePct < 0 || c.HardwarePct > 1 {
		return fmt.Errorf("hardware pct %v outside [0,1]", c.HardwarePct)
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate %v outside [0,1]", c.DropRate)
	}
	return nil
}
