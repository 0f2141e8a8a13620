package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/resolution"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/tracking"
	"github.com/kilianp07/faultfleet/infra/mqtt"
	"github.com/kilianp07/faultfleet/infra/notify"
	"github.com/kilianp07/faultfleet/infra/predictor"
	"github.com/kilianp07/faultfleet/infra/store"
)

// EnvPrefix marks the environment variables overriding file settings.
// Nested keys are separated by a double underscore, as in
// FLEET_DISPATCH__ACK_TIMEOUT_SECONDS.
const EnvPrefix = "FLEET_"

// ModeConfig toggles deployment-wide behavior.
type ModeConfig struct {
	// Prototype admits vehicles without acknowledgment hardware and
	// confirms their dispatches implicitly.
	Prototype bool `json:"prototype"`
}

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// LogsToken protects /api/dispatch/logs when set.
	LogsToken string `json:"logs_token"`
}

// NotifyConfig lists the downstream notification channels.
type NotifyConfig struct {
	Kafka notify.KafkaConfig `json:"kafka"`
}

type Config struct {
	Mode       ModeConfig        `json:"mode"`
	Dispatch   dispatch.Config   `json:"dispatch"`
	Tracking   tracking.Config   `json:"tracking"`
	Resolution resolution.Config `json:"resolution"`
	Routing    routing.Config    `json:"routing"`
	Predictor  predictor.Config  `json:"predictor"`
	MQTT       mqtt.Config       `json:"mqtt"`
	Store      store.Config      `json:"store"`
	Metrics    metrics.Config    `json:"metrics"`
	Log        LogConfig         `json:"log"`
	Logging    LoggingConfig     `json:"logging"`
	HTTP       HTTPConfig        `json:"http"`
	Notify     NotifyConfig      `json:"notify"`
}

// Load reads the yaml or json file at path, applies FLEET_ environment
// overrides, then defaults, and validates the result. An empty path loads
// the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	c.Dispatch.Prototype = c.Mode.Prototype
	c.Tracking.SetDefaults()
	c.Resolution.SetDefaults()
	c.Routing.SetDefaults()
	c.MQTT.SetDefaults()
	c.Store.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
	c.Notify.Kafka.SetDefaults()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate checks every section and returns the first error.
func (c Config) Validate() error {
	validators := []func() error{
		c.Dispatch.Validate,
		c.Tracking.Validate,
		c.Resolution.Validate,
		c.Routing.Validate,
		c.MQTT.Validate,
		c.Store.Validate,
		c.Metrics.Validate,
		c.Log.Validate,
		c.Logging.Validate,
		c.Notify.Kafka.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	if c.Dispatch.Strategy == dispatch.StrategyPredictor && c.Predictor.URL == "" {
		return fmt.Errorf("predictor: url is required for the predictor strategy")
	}
	return nil
}
