package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PillFleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fleet    FleetConfig    `yaml:"fleet"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Firmware FirmwareConfig `yaml:"firmware"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// FleetConfig contains fleet-wide device liveness settings.
type FleetConfig struct {
	// HeartbeatInterval is the period devices are expected to report on (seconds).
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// StalenessThreshold is the maximum silence interval before a device is
	// considered offline (seconds). Online/offline is always derived from
	// last_seen at read time, never stored.
	StalenessThreshold int `yaml:"staleness_threshold"`
}

// Staleness returns the staleness threshold as a Duration.
func (c FleetConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessThreshold) * time.Second
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// FirmwareConfig contains firmware artifact storage settings.
type FirmwareConfig struct {
	// Dir is the directory firmware blobs are stored in (content-addressed).
	Dir string `yaml:"dir"`

	// MaxUploadBytes caps the size of a single firmware upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// AdminToken authenticates the administrative CRUD layer. Device
	// credentials are per-device API keys and are managed separately.
	AdminToken string `yaml:"admin_token"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PILLFLEET_SECTION_KEY
// For example: PILLFLEET_DATABASE_PATH, PILLFLEET_MQTT_HOST
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
		Fleet: FleetConfig{
			HeartbeatInterval:  30,
			StalenessThreshold: 90, // three missed 30s beats
		},
		Database: DatabaseConfig{
			Path:        "./data/pillfleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pillfleet-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60, // firmware downloads can be slow on constrained links
				Idle:  60,
			},
		},
		Firmware: FirmwareConfig{
			Dir:            "./data/firmware",
			MaxUploadBytes: 16 << 20, // 16MB, comfortably above ESP32 partition sizes
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PILLFLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PILLFLEET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PILLFLEET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PILLFLEET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PILLFLEET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PILLFLEET_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PILLFLEET_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Firmware
	if v := os.Getenv("PILLFLEET_FIRMWARE_DIR"); v != "" {
		cfg.Firmware.Dir = v
	}

	// InfluxDB
	if v := os.Getenv("PILLFLEET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - admin token (IMPORTANT: always set in production)
	if v := os.Getenv("PILLFLEET_ADMIN_TOKEN"); v != "" {
		cfg.Security.AdminToken = v
	}
}

// minAdminTokenLength is the minimum acceptable admin token length.
// These appliances dispense medication; a guessable admin credential
// would let an attacker rewrite dosing schedules.
const minAdminTokenLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Fleet.HeartbeatInterval <= 0 {
		errs = append(errs, "fleet.heartbeat_interval must be positive")
	}
	if c.Fleet.StalenessThreshold <= 0 {
		errs = append(errs, "fleet.staleness_threshold must be positive")
	}
	if c.Fleet.StalenessThreshold <= c.Fleet.HeartbeatInterval {
		errs = append(errs, "fleet.staleness_threshold must exceed fleet.heartbeat_interval")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Firmware.Dir == "" {
		errs = append(errs, "firmware.dir is required")
	}
	if c.Firmware.MaxUploadBytes <= 0 {
		errs = append(errs, "firmware.max_upload_bytes must be positive")
	}

	if c.Security.AdminToken == "" {
		errs = append(errs, "security.admin_token is required (set PILLFLEET_ADMIN_TOKEN environment variable)")
	} else if len(c.Security.AdminToken) < minAdminTokenLength {
		errs = append(errs, "security.admin_token must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
