package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	SparkSDR     SparkSDRConfig     `yaml:"sparksdr"`
	Station      StationConfig      `yaml:"station"`
	Lookup       LookupConfig       `yaml:"lookup"`
	Logbook      LogbookConfig      `yaml:"logbook"`
	CTY          CTYConfig          `yaml:"cty"`
	Prometheus   PrometheusConfig   `yaml:"prometheus"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	MCP          MCPConfig          `yaml:"mcp"`
	VersionCheck VersionCheckConfig `yaml:"version_check"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains the local HTTP API settings
type ServerConfig struct {
	Listen         string `yaml:"listen"`           // e.g. ":8080"; empty disables the API
	CommandRate    int    `yaml:"command_rate"`     // control requests per minute per client IP, negative disables
	RequestLogSize int    `yaml:"request_log_size"` // API requests kept for /api/logs/http
}

// SparkSDRConfig contains the control server connection settings
type SparkSDRConfig struct {
	Address          string `yaml:"address"`           // websocket URL, e.g. ws://localhost:4649/Spark
	AutoConnect      bool   `yaml:"auto_connect"`      // connect when the event loop starts
	PollInterval     int    `yaml:"poll_interval"`     // seconds between receiver/radio refreshes, 0 disables
	MaxSpots         int    `yaml:"max_spots"`         // spots retained after trimming
	SubscribeSpots   bool   `yaml:"subscribe_spots"`   // send subscribeToSpots on connect
	HandshakeTimeout int    `yaml:"handshake_timeout"` // seconds
}

// StationConfig describes the local station
type StationConfig struct {
	Callsign string `yaml:"callsign"`
	Locator  string `yaml:"locator"` // Maidenhead, used for spot distances
}

// LookupConfig contains the callsign lookup service settings
type LookupConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BaseURL      string  `yaml:"base_url"`     // serves /out/{prefix}/{callsign}.json
	Jurisdiction string  `yaml:"jurisdiction"` // CTY country name the service covers
	Timeout      int     `yaml:"timeout"`      // seconds
	RateLimit    float64 `yaml:"rate_limit"`   // requests per second, 0 = unlimited
	Burst        int     `yaml:"burst"`
	OnFailure    string  `yaml:"on_failure"` // keep | not_found | forget
}

// LogbookConfig points at an ADIF file imported at startup
type LogbookConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"` // re-import when the file changes
}

// CTYConfig selects the country prefix table
type CTYConfig struct {
	Path string `yaml:"path"` // cty.dat; empty uses the built-in table
}

// PrometheusConfig contains the /metrics endpoint settings
type PrometheusConfig struct {
	Enabled      bool     `yaml:"enabled"`
	AllowedHosts []string `yaml:"allowed_hosts"` // IPs/CIDRs allowed to scrape

	allowedNets []*net.IPNet
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"` // e.g. tcp://mqtt.example.com:1883
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	ClientID        string        `yaml:"client_id"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	PublishInterval int           `yaml:"publish_interval"` // seconds between metric snapshots
	QoS             byte          `yaml:"qos"`
	Retain          bool          `yaml:"retain"`
	TLS             MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains MQTT TLS/SSL settings
type MQTTTLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CACert             string `yaml:"ca_cert"`
	ClientCert         string `yaml:"client_cert"`
	ClientKey          string `yaml:"client_key"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// MCPConfig toggles the MCP endpoint on the HTTP server
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// VersionCheckConfig controls the periodic release check
type VersionCheckConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, applies defaults and validates
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if config.Prometheus.Enabled {
		if err := config.Prometheus.parseAllowedHosts(); err != nil {
			return nil, fmt.Errorf("failed to parse prometheus.allowed_hosts: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.CommandRate == 0 {
		c.Server.CommandRate = 120
	}
	if c.Server.RequestLogSize == 0 {
		c.Server.RequestLogSize = 500
	}
	if c.SparkSDR.MaxSpots == 0 {
		c.SparkSDR.MaxSpots = 200
	}
	if c.SparkSDR.HandshakeTimeout == 0 {
		c.SparkSDR.HandshakeTimeout = 10
	}
	if c.Lookup.Jurisdiction == "" {
		c.Lookup.Jurisdiction = "United States"
	}
	if c.Lookup.Timeout == 0 {
		c.Lookup.Timeout = 10
	}
	if c.Lookup.Burst == 0 {
		c.Lookup.Burst = 5
	}
	if c.Lookup.OnFailure == "" {
		c.Lookup.OnFailure = string(LookupFailureKeep)
	}
	if c.Prometheus.Enabled && len(c.Prometheus.AllowedHosts) == 0 {
		c.Prometheus.AllowedHosts = []string{"127.0.0.1", "::1"}
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "sparkclient"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 60
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "sparkclient"
	}
	if c.VersionCheck.IntervalMinutes == 0 {
		c.VersionCheck.IntervalMinutes = 720
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.SparkSDR.AutoConnect && c.SparkSDR.Address == "" {
		return fmt.Errorf("sparksdr.address is required when auto_connect is set")
	}
	if c.SparkSDR.Address != "" &&
		!strings.HasPrefix(c.SparkSDR.Address, "ws://") && !strings.HasPrefix(c.SparkSDR.Address, "wss://") {
		return fmt.Errorf("sparksdr.address must be a ws:// or wss:// URL")
	}
	if c.SparkSDR.MaxSpots < 1 {
		return fmt.Errorf("sparksdr.max_spots must be at least 1")
	}
	if c.SparkSDR.PollInterval < 0 {
		return fmt.Errorf("sparksdr.poll_interval must not be negative")
	}
	if c.Station.Locator != "" {
		if _, _, err := LocatorToLatLon(c.Station.Locator); err != nil {
			return fmt.Errorf("station.locator: %w", err)
		}
	}
	if c.Lookup.Enabled && c.Lookup.BaseURL == "" {
		return fmt.Errorf("lookup.base_url is required when lookup is enabled")
	}
	if !LookupFailurePolicy(c.Lookup.OnFailure).Valid() {
		return fmt.Errorf("lookup.on_failure must be keep, not_found or forget")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.Server.RequestLogSize < 0 {
		return fmt.Errorf("server.request_log_size must not be negative")
	}
	if c.MCP.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("mcp requires server.listen")
	}
	return nil
}

// parseAllowedHosts parses the allowed_hosts list into CIDR networks
func (pc *PrometheusConfig) parseAllowedHosts() error {
	pc.allowedNets = make([]*net.IPNet, 0, len(pc.AllowedHosts))
	for _, entry := range pc.AllowedHosts {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return fmt.Errorf("invalid IP address: %s", entry)
			}
			if ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return fmt.Errorf("invalid CIDR: %s", entry)
		}
		pc.allowedNets = append(pc.allowedNets, ipNet)
	}
	return nil
}

// IsAllowed reports whether ip may scrape /metrics
func (pc *PrometheusConfig) IsAllowed(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range pc.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
