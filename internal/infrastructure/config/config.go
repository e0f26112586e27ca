package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware modes.
const (
	HardwareModeMQTT = "mqtt"
	HardwareModeSim  = "sim"
)

// Config is the root configuration structure for the grow controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Inventory InventoryConfig `yaml:"inventory"`
	Control   ControlConfig   `yaml:"control"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// InventoryConfig points at the device inventory resource (JSON or YAML).
type InventoryConfig struct {
	Path string `yaml:"path"`
}

// ControlConfig contains control loop and irrigation settings.
type ControlConfig struct {
	// Interval is the control loop tick period.
	Interval time.Duration `yaml:"interval"`

	// Workers bounds the number of irrigation cycles running at once.
	Workers int `yaml:"workers"`

	// SensorTimeout bounds a single sensor read.
	SensorTimeout time.Duration `yaml:"sensor_timeout"`

	// AcquireTimeout bounds how long a cycle waits for the arm, pump and tank.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// Hysteresis is the de-escalation margin in sensor units. 0 disables it.
	Hysteresis float64 `yaml:"hysteresis"`

	Breaker BreakerConfig `yaml:"breaker"`
	Tank    TankConfig    `yaml:"tank"`
}

// BreakerConfig configures the per-device sensor circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive read failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// TankConfig holds the tank level bands, in percent.
type TankConfig struct {
	Empty    float64 `yaml:"empty"`
	Low      float64 `yaml:"low"`
	Overfill float64 `yaml:"overfill"`
}

// HardwareConfig selects and tunes the sensor/actuator bridge.
type HardwareConfig struct {
	// Mode is "mqtt" for the MQTT hardware bridge or "sim" for the in-process simulator.
	Mode string `yaml:"mode"`

	// AckTimeout bounds how long an arm move waits for its position acknowledgement.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// StaleAfter is the age after which a cached sensor value counts as unavailable.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays is how long history events are kept. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the read-only status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GROW_SECTION_KEY
// For example: GROW_INVENTORY_PATH, GROW_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:     "grow",
			Timezone: "UTC",
		},
		Inventory: InventoryConfig{
			Path: "./configs/inventory.json",
		},
		Control: ControlConfig{
			Interval:       10 * time.Second,
			Workers:        4,
			SensorTimeout:  2 * time.Second,
			AcquireTimeout: 10 * time.Minute,
			Breaker: BreakerConfig{
				MaxFailures: 3,
				OpenTimeout: 30 * time.Second,
			},
			Tank: TankConfig{
				Empty:    5,
				Low:      20,
				Overfill: 98,
			},
		},
		Hardware: HardwareConfig{
			Mode:       HardwareModeMQTT,
			AckTimeout: 30 * time.Second,
			StaleAfter: time.Minute,
		},
		Database: DatabaseConfig{
			Path:          "./data/grow.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "grow-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GROW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROW_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}
	if v := os.Getenv("GROW_INVENTORY_PATH"); v != "" {
		cfg.Inventory.Path = v
	}
	if v := os.Getenv("GROW_HARDWARE_MODE"); v != "" {
		cfg.Hardware.Mode = v
	}
	if v := os.Getenv("GROW_CONTROL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Control.Interval = d
		}
	}

	// Database
	if v := os.Getenv("GROW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GROW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GROW_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GROW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GROW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GROW_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("GROW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GROW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together so an operator can fix
// a broken file in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site
	if c.Site.Name == "" {
		errs = append(errs, "site.name is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid time zone", c.Site.Timezone))
	}

	// Inventory
	if c.Inventory.Path == "" {
		errs = append(errs, "inventory.path is required")
	}

	// Control
	if c.Control.Interval <= 0 {
		errs = append(errs, "control.interval must be positive")
	}
	if c.Control.Workers < 1 {
		errs = append(errs, "control.workers must be at least 1")
	}
	if c.Control.SensorTimeout <= 0 {
		errs = append(errs, "control.sensor_timeout must be positive")
	}
	if c.Control.AcquireTimeout <= 0 {
		errs = append(errs, "control.acquire_timeout must be positive")
	}
	if c.Control.Hysteresis < 0 {
		errs = append(errs, "control.hysteresis must not be negative")
	}
	if c.Control.Breaker.MaxFailures == 0 {
		errs = append(errs, "control.breaker.max_failures must be at least 1")
	}
	t := c.Control.Tank
	if t.Empty < 0 || t.Empty >= t.Low || t.Low >= t.Overfill || t.Overfill > 100 {
		errs = append(errs, "control.tank bands must satisfy 0 <= empty < low < overfill <= 100")
	}

	// Hardware
	switch c.Hardware.Mode {
	case HardwareModeMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "hardware.mode mqtt requires mqtt.enabled")
		}
	case HardwareModeSim:
	default:
		errs = append(errs, fmt.Sprintf("hardware.mode must be %q or %q", HardwareModeMQTT, HardwareModeSim))
	}
	if c.Hardware.AckTimeout <= 0 {
		errs = append(errs, "hardware.ack_timeout must be positive")
	}
	if c.Hardware.StaleAfter <= 0 {
		errs = append(errs, "hardware.stale_after must be positive")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site time zone. It falls back to UTC when the zone
// cannot be loaded; Validate reports that case at startup.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
