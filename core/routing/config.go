package routing

import (
	"fmt"
	"time"
)

// Config defines routing settings.
type Config struct {
	// Provider selects the external router: "osrm", "google" or "none".
	Provider                string      `json:"provider"`
	OSRMURL                 string      `json:"osrm_url"`
	GoogleAPIKey            string      `json:"google_api_key"`
	TimeoutMS               int         `json:"timeout_ms"`
	FailureThreshold        int         `json:"failure_threshold"`
	RecoverySeconds         int         `json:"recovery_seconds"`
	CacheTTLSeconds         int         `json:"cache_ttl_seconds"`
	FallbackCacheTTLSeconds int         `json:"fallback_cache_ttl_seconds"`
	FallbackSpeedKMH        float64     `json:"fallback_speed_kmh"`
	Cache                   CacheConfig `json:"cache"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	KeyPrefix     string `json:"key_prefix"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "none"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "route:"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Provider {
	case "none":
	case "osrm":
		if c.OSRMURL == "" {
			return fmt.Errorf("routing: osrm_url is required for provider osrm")
		}
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("routing: google_api_key is required for provider google")
		}
	default:
		return fmt.Errorf("routing: unknown provider %s", c.Provider)
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("routing: unknown cache backend %s", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("routing: redis_addr is required for redis cache")
	}
	return nil
}

// Timeout bounds each external router call. Defaults to 3s.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Threshold returns the consecutive failures tripping the breaker. Defaults to 3.
func (c Config) Threshold() int {
	if c.FailureThreshold <= 0 {
		return 3
	}
	return c.FailureThreshold
}

// Recovery returns how long the breaker stays open. Defaults to 60s.
func (c Config) Recovery() time.Duration {
	if c.RecoverySeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RecoverySeconds) * time.Second
}

// RoutedTTL returns the cache lifetime of router answers. Defaults to 5m.
func (c Config) RoutedTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FallbackTTL returns the cache lifetime of fallback answers. Defaults to 1m.
func (c Config) FallbackTTL() time.Duration {
	if c.FallbackCacheTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.FallbackCacheTTLSeconds) * time.Second
}

// FallbackSpeed returns the assumed urban speed in km/h. Defaults to 30.
func (c Config) FallbackSpeed() float64 {
	if c.FallbackSpeedKMH <= 0 {
		return 30
	}
	return c.FallbackSpeedKMH
}
