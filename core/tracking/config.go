package tracking

import (
	"fmt"
	"time"

	"github.com/kilianp07/faultfleet/core/geo"
)

// Config holds the arrival and deviation thresholds.
type Config struct {
	ArrivalThresholdM   float64 `json:"arrival_threshold_m"`
	DeviationThresholdM float64 `json:"deviation_threshold_m"`
	DestinationGuardM   float64 `json:"destination_guard_m"`
	MinRouteAgeSeconds  int     `json:"min_route_age_seconds"`
	AssumedSpeedKMH     float64 `json:"assumed_speed_kmh"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ArrivalThresholdM <= 0 {
		c.ArrivalThresholdM = 50
	}
	if c.DeviationThresholdM <= 0 {
		c.DeviationThresholdM = 200
	}
	if c.DestinationGuardM <= 0 {
		c.DestinationGuardM = 500
	}
	if c.MinRouteAgeSeconds <= 0 {
		c.MinRouteAgeSeconds = 30
	}
	if c.AssumedSpeedKMH <= 0 {
		c.AssumedSpeedKMH = 30
	}
}

// Validate rejects negative thresholds.
func (c Config) Validate() error {
	if c.ArrivalThresholdM < 0 || c.DeviationThresholdM < 0 || c.DestinationGuardM < 0 {
		return fmt.Errorf("tracking: thresholds must not be negative")
	}
	if c.AssumedSpeedKMH < 0 {
		return fmt.Errorf("tracking: assumed_speed_kmh must not be negative")
	}
	return nil
}

func (c Config) minRouteAge() time.Duration {
	return time.Duration(c.MinRouteAgeSeconds) * time.Second
}

func (c Config) speedMS() float64 { return geo.KMHToMS(c.AssumedSpeedKMH) }
