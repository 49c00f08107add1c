package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hapcolor/internal/fixture"
)

// Config represents the application configuration
type Config struct {
	Log       LogConfig            `yaml:"log"`
	Database  DatabaseConfig       `yaml:"database"`
	Driver    DriverConfig         `yaml:"driver"`
	Discover  *bool                `yaml:"discover"` // nil means true
	Discovery DiscoveryConfig      `yaml:"discovery"`
	Devices   []fixture.Descriptor `yaml:"devices"` // used when discover is false
	Modes     map[string]string    `yaml:"modes"`   // device id -> color mode
	HomeKit   HomeKitConfig        `yaml:"homekit"`
	Status    StatusConfig         `yaml:"status"`

	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig contains device discovery settings
type DiscoveryConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// DriverConfig selects how fixtures are reached
type DriverConfig struct {
	Kind         string    `yaml:"kind"`           // hue | memory
	RateLimitRPS float64   `yaml:"rate_limit_rps"` // commands per second per driver; unset means 10, negative disables limiting
	Hue          HueConfig `yaml:"hue"`
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge  string   `yaml:"bridge"`
	User    string   `yaml:"user"`
	Timeout Duration `yaml:"timeout"`
}

// HomeKitConfig contains HAP bridge settings
type HomeKitConfig struct {
	Name         string `yaml:"name"`
	Pin          string `yaml:"pin"`
	Port         int    `yaml:"port"` // 0 = random
	StoragePath  string `yaml:"storage_path"`
	Manufacturer string `yaml:"manufacturer"`
}

// StatusConfig contains status API server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DiscoverEnabled reports whether devices are found by scanning
func (c *Config) DiscoverEnabled() bool {
	return c.Discover == nil || *c.Discover
}

// GetShutdownTimeout returns the graceful shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hapcolor.sqlite"
	}

	// Discovery defaults - one short scan
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(500 * time.Millisecond)
	}

	// Driver defaults
	if cfg.Driver.Kind == "" {
		cfg.Driver.Kind = "hue"
	}
	if cfg.Driver.RateLimitRPS == 0 {
		cfg.Driver.RateLimitRPS = 10.0
	}
	if cfg.Driver.Hue.Timeout == 0 {
		cfg.Driver.Hue.Timeout = Duration(5 * time.Second)
	}

	// HomeKit defaults
	if cfg.HomeKit.Name == "" {
		cfg.HomeKit.Name = "hapcolor"
	}
	if cfg.HomeKit.Pin == "" {
		cfg.HomeKit.Pin = "00102003"
	}
	if cfg.HomeKit.StoragePath == "" {
		cfg.HomeKit.StoragePath = "./hap"
	}
	if cfg.HomeKit.Manufacturer == "" {
		cfg.HomeKit.Manufacturer = "hapcolor"
	}

	// Status API defaults
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 9090
	}
	if cfg.Status.Host == "" {
		cfg.Status.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Driver.Kind {
	case "hue":
		if c.DiscoverEnabled() && c.Driver.Hue.Bridge == "" {
			return fmt.Errorf("driver.hue.bridge is required for discovery")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown driver kind %q", c.Driver.Kind)
	}

	if len(c.HomeKit.Pin) != 8 || strings.Trim(c.HomeKit.Pin, "0123456789") != "" {
		return fmt.Errorf("homekit.pin must be 8 digits")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
