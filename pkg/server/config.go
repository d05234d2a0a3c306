package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-apx/pkg/validation"
)

// Defaults applied by LoadConfig and DefaultConfig
const (
	DefaultListenAddr       = ":5000"
	DefaultMaxConnections   = 10000
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultLogLevel         = "info"
)

// Config configures an APX server
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`
	MaxConnections   int           `yaml:"max_connections"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	LogLevel         string        `yaml:"log_level"`

	// StatusAddr is the HTTP address of /metrics, /health and /nodes.
	// Empty disables the status server.
	StatusAddr string `yaml:"status_addr"`

	// EventLog is a text event log path; EventLogBinary a framed binary one
	EventLog            string        `yaml:"event_log"`
	EventLogBinary      string        `yaml:"event_log_binary"`
	EventUpdateInterval time.Duration `yaml:"event_update_interval"`

	// TapAddr is an NNG URL port updates are published on, e.g.
	// tcp://127.0.0.1:5001
	TapAddr string `yaml:"tap_addr"`

	// Store is a JSON file path or a postgres:// URL. Empty keeps
	// definitions in memory.
	Store string `yaml:"store"`
}

// DefaultConfig returns a config with every default applied
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	c.ListenAddr = validation.DefaultOr(c.ListenAddr, DefaultListenAddr)
	c.MaxConnections = validation.PositiveOr(c.MaxConnections, DefaultMaxConnections)
	c.HandshakeTimeout = validation.PositiveOr(c.HandshakeTimeout, DefaultHandshakeTimeout)
	c.ShutdownTimeout = validation.PositiveOr(c.ShutdownTimeout, DefaultShutdownTimeout)
	c.EventUpdateInterval = validation.PositiveOr(c.EventUpdateInterval, time.Second)
	c.LogLevel = validation.DefaultOr(c.LogLevel, DefaultLogLevel)
}

// LoadConfig reads a YAML config, applies defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.NewConfigValidator("server").
		ListenAddress("listen_addr", c.ListenAddr).
		RangeInt("max_connections", c.MaxConnections, 1, 1<<20).
		MinDuration("handshake_timeout", c.HandshakeTimeout, 10*time.Millisecond).
		MinDuration("event_update_interval", c.EventUpdateInterval, 10*time.Millisecond).
		OneOf("log_level", c.LogLevel, "debug", "info", "warn", "error").
		When(c.StatusAddr != "", func(v *validation.ConfigValidator) {
			v.ListenAddress("status_addr", c.StatusAddr)
		}).
		When(c.TapAddr != "", func(v *validation.ConfigValidator) {
			v.URLScheme("tap_addr", c.TapAddr, "tcp", "ipc", "inproc", "ws")
		}).
		When(strings.Contains(c.Store, "://"), func(v *validation.ConfigValidator) {
			v.URLScheme("store", c.Store, "postgres", "postgresql")
		}).
		Validate()
}
