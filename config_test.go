package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("sparksdr:\n  address: ws://localhost:4649/Spark\n"))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:4649/Spark", cfg.SparkSDR.Address)
	assert.Equal(t, 200, cfg.SparkSDR.MaxSpots)
	assert.Equal(t, 10, cfg.SparkSDR.HandshakeTimeout)
	assert.Equal(t, "United States", cfg.Lookup.Jurisdiction)
	assert.Equal(t, string(LookupFailureKeep), cfg.Lookup.OnFailure)
	assert.Equal(t, "sparkclient", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestParseConfig_Full(t *testing.T) {
	data := `
server:
  listen: ":8080"
sparksdr:
  address: wss://shack.example:4649/Spark
  auto_connect: true
  poll_interval: 30
  max_spots: 500
  subscribe_spots: true
station:
  callsign: W1AW
  locator: FN31pr
lookup:
  enabled: true
  base_url: https://callbook.example
  rate_limit: 2.5
  on_failure: forget
logbook:
  path: /tmp/log.adi
  watch: true
prometheus:
  enabled: true
  allowed_hosts: ["10.0.0.0/8", "192.168.1.5"]
mcp:
  enabled: true
logging:
  level: debug
  format: json
`
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	assert.True(t, cfg.SparkSDR.AutoConnect)
	assert.Equal(t, 500, cfg.SparkSDR.MaxSpots)
	assert.Equal(t, 2.5, cfg.Lookup.RateLimit)
	assert.Equal(t, "forget", cfg.Lookup.OnFailure)
	assert.True(t, cfg.Logbook.Watch)

	assert.True(t, cfg.Prometheus.IsAllowed(net.ParseIP("10.1.2.3")))
	assert.True(t, cfg.Prometheus.IsAllowed(net.ParseIP("192.168.1.5")))
	assert.False(t, cfg.Prometheus.IsAllowed(net.ParseIP("192.168.1.6")))
	assert.False(t, cfg.Prometheus.IsAllowed(nil))
}

func TestParseConfig_PrometheusDefaultsToLoopback(t *testing.T) {
	cfg, err := ParseConfig([]byte("prometheus:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Prometheus.IsAllowed(net.ParseIP("127.0.0.1")))
	assert.True(t, cfg.Prometheus.IsAllowed(net.ParseIP("::1")))
	assert.False(t, cfg.Prometheus.IsAllowed(net.ParseIP("10.0.0.1")))
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":              "sparksdr: [",
		"auto connect no addr":  "sparksdr:\n  auto_connect: true\n",
		"http address":          "sparksdr:\n  address: http://localhost:4649/Spark\n",
		"negative max spots":    "sparksdr:\n  max_spots: -1\n",
		"negative poll":         "sparksdr:\n  poll_interval: -5\n",
		"bad locator":           "station:\n  locator: ZZ99\n",
		"lookup without url":    "lookup:\n  enabled: true\n",
		"unknown policy":        "lookup:\n  on_failure: retry\n",
		"mqtt without broker":   "mqtt:\n  enabled: true\n",
		"mqtt qos":              "mqtt:\n  qos: 3\n",
		"mcp without server":    "mcp:\n  enabled: true\n",
		"bad allowed host":      "prometheus:\n  enabled: true\n  allowed_hosts: [\"not-an-ip\"]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sparksdr:\n  max_spots: 50\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.SparkSDR.MaxSpots)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
