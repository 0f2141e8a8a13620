package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `mode:
  prototype: true
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  topic_prefix: "karachi"
  qos:
    dispatch: 1
dispatch:
  ack_timeout_seconds: 3
  strategy: predictor
predictor:
  url: "http://localhost:5000"
tracking:
  arrival_threshold_m: 40
routing:
  provider: osrm
  osrm_url: "http://osrm:5000"
  cache:
    backend: redis
    redis_addr: "redis:6379"
store:
  driver: sqlite
notify:
  kafka:
    enabled: true
    brokers: ["kafka:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "karachi"},
		{"qos", cfg.MQTT.QoS["dispatch"], byte(1)},
		{"ack_timeout_seconds", cfg.Dispatch.AckTimeoutSeconds, 3},
		{"exclusion default", cfg.Dispatch.ExclusionTTLSeconds, 600},
		{"prototype", cfg.Dispatch.Prototype, true},
		{"arrival threshold", cfg.Tracking.ArrivalThresholdM, 40.0},
		{"deviation default", cfg.Tracking.DeviationThresholdM, 200.0},
		{"resolution default", cfg.Resolution.DelaySeconds, 300},
		{"cache backend", cfg.Routing.Cache.Backend, "redis"},
		{"sqlite path", cfg.Store.Path, "faultfleet.db"},
		{"kafka topic", cfg.Notify.Kafka.DispatchTopic, "fleet.dispatch"},
		{"logging backend", cfg.Logging.Backend, "jsonl"},
		{"logging rotation", cfg.Logging.MaxBackups, 5},
		{"http addr", cfg.HTTP.Addr, ":8080"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{"dispatch":{"ack_timeout_seconds":3}}`)
	t.Setenv("FLEET_DISPATCH__ACK_TIMEOUT_SECONDS", "9")
	t.Setenv("FLEET_HTTP__ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Dispatch.AckTimeoutSeconds)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("FLEET_RESOLUTION__DELAY_SECONDS", "120")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Resolution.DelaySeconds)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", ""))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "dispatch:\n  strategy: predictor\n"))
	assert.ErrorContains(t, err, "predictor")

	_, err = Load(writeFile(t, "config.yaml", "routing:\n  provider: osrm\n"))
	assert.ErrorContains(t, err, "osrm_url")

	_, err = Load(writeFile(t, "config.yaml", "logging:\n  backend: csv\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "log:\n  level: loud\n"))
	assert.ErrorContains(t, err, "unknown level")
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "9090", cfg.Metrics.PrometheusPort)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, byte(0), cfg.MQTT.QoS["position"])
}
