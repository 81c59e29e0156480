package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig responder configuration
type ServerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BindHost      string `yaml:"bind_host"`      // Empty binds all interfaces
	Port          int    `yaml:"port"`           // Listening port (default 80)
	ReadTimeout   int    `yaml:"read_timeout"`   // Per-connection read/write timeout in seconds (0 means none)
	ProxyProtocol bool   `yaml:"proxy_protocol"` // Accept HAProxy PROXY headers so logs show the original client
}

// ClientConfig prober configuration
type ClientConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Peers       []string `yaml:"peers"`        // host[:port[:name]] entries
	Interval    int      `yaml:"interval"`     // Pause between probe cycles in seconds
	DialTimeout int      `yaml:"dial_timeout"` // Connect timeout in seconds
	ReadTimeout int      `yaml:"read_timeout"` // Reply timeout in seconds (0 means none)
}

// LogConfig log configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig telemetry endpoint configuration
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // Empty disables the endpoint
	TelemetryPath string `yaml:"telemetry_path"`
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "pingpong.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()
	config.ApplyEnvOverrides()

	return &config, nil
}

// Default returns a configuration with defaults and env overrides applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	c.ApplyEnvOverrides()
	return c
}

// SetDefaults sets default values
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 80
	}

	if c.Client.Interval == 0 {
		c.Client.Interval = 5
	}
	if c.Client.DialTimeout == 0 {
		c.Client.DialTimeout = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}

	if c.Metrics.TelemetryPath == "" {
		c.Metrics.TelemetryPath = "/metrics"
	}
}

// BindAddr returns the responder listen address.
func (c *Config) BindAddr() string {
	return net.JoinHostPort(c.Server.BindHost, strconv.Itoa(c.Server.Port))
}

// GetServerReadTimeout gets responder read timeout
func (c *Config) GetServerReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

// GetProbeInterval gets the pause between probe cycles
func (c *Config) GetProbeInterval() time.Duration {
	return time.Duration(c.Client.Interval) * time.Second
}

// GetDialTimeout gets dial timeout
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Client.DialTimeout) * time.Second
}

// GetClientReadTimeout gets the reply timeout
func (c *Config) GetClientReadTimeout() time.Duration {
	return time.Duration(c.Client.ReadTimeout) * time.Second
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	// Responder
	if val := os.Getenv("PINGPONG_SERVER_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Server.Port = i
		}
	}
	if val := os.Getenv("PINGPONG_SERVER_BIND_HOST"); val != "" {
		c.Server.BindHost = val
	}
	if val := os.Getenv("PINGPONG_SERVER_READ_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Server.ReadTimeout = i
		}
	}

	// Prober, PINGPONG_CLIENTS is a comma-separated list of peer specs
	if val := os.Getenv("PINGPONG_CLIENTS"); val != "" {
		peers := make([]string, 0)
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				peers = append(peers, p)
			}
		}
		c.Client.Peers = peers
	}
	if val := os.Getenv("PINGPONG_CLIENT_INTERVAL_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			c.Client.Interval = i
		}
	}
	if val := os.Getenv("PINGPONG_CLIENT_DIAL_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			c.Client.DialTimeout = i
		}
	}

	// Log config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}

	// Metrics config
	if val := os.Getenv("METRICS_LISTEN_ADDRESS"); val != "" {
		c.Metrics.ListenAddress = val
	}
	if val := os.Getenv("METRICS_TELEMETRY_PATH"); val != "" {
		c.Metrics.TelemetryPath = val
	}
}
