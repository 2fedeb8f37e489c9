package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that locate configuration files.
const (
	// EnvConfigPath overrides the YAML configuration path.
	EnvConfigPath = "FLEET_CONFIG"

	// EnvDotEnvPath overrides the .env file path.
	EnvDotEnvPath = "FLEET_ENV_FILE"

	// DefaultConfigPath is used when FLEET_CONFIG is unset.
	DefaultConfigPath = "configs/config.yaml"

	// DefaultDotEnvPath is used when FLEET_ENV_FILE is unset.
	DefaultDotEnvPath = ".env"
)

// Config is the root configuration structure for Fleet Telemetry Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Fleet     FleetConfig     `yaml:"fleet"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// DatabaseConfig contains SQLite database settings.
// When disabled, registrations and the audit trail live in memory only.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file log settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig configures the reading streams.
type TelemetryConfig struct {
	// Capacity is the default history capacity per stream.
	Capacity int `yaml:"capacity"`

	// DefaultLimit is the history length returned when none is requested.
	DefaultLimit int `yaml:"default_limit"`

	// StaleAfter is the freshness threshold in seconds.
	StaleAfter int `yaml:"stale_after"`

	// Streams lists the configured streams. Empty selects soil and climate.
	Streams []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one telemetry stream.
type StreamConfig struct {
	Name     string   `yaml:"name"`
	Primary  string   `yaml:"primary"`
	Fields   []string `yaml:"fields"`
	Capacity int      `yaml:"capacity"`
}

// FleetConfig configures the device registry, scans and commands.
type FleetConfig struct {
	Origin              OriginConfig `yaml:"origin"`
	ScanRange           float64      `yaml:"scan_range"`
	ScanDelayMS         int          `yaml:"scan_delay_ms"`
	CommandDelayMS      int          `yaml:"command_delay_ms"`
	HistoryPoints       int          `yaml:"history_points"`
	BatteryDecayPerHour float64      `yaml:"battery_decay_per_hour"`
	SignalJitter        int          `yaml:"signal_jitter"`
	CommandBatteryCost  float64      `yaml:"command_battery_cost"`

	// Catalog lists statically known devices. Empty selects the built-in catalog.
	Catalog []CatalogDeviceConfig `yaml:"catalog"`

	// Gateways lists radio gateways. Empty selects the built-in gateways.
	Gateways []GatewayConfig `yaml:"gateways"`
}

// OriginConfig is the reference point for distances.
type OriginConfig struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// CatalogDeviceConfig is one statically configured device.
type CatalogDeviceConfig struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Frequency *float64 `yaml:"frequency"`
	Lat       float64  `yaml:"lat"`
	Lng       float64  `yaml:"lng"`
	Battery   float64  `yaml:"battery"`
}

// GatewayConfig is one radio gateway of the network topology.
type GatewayConfig struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lng      float64 `yaml:"lng"`
	RadiusKM float64 `yaml:"radius_km"`
	Signal   int     `yaml:"signal"`
}

// Path returns the configuration file path from FLEET_CONFIG, or the default.
func Path() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file (FLEET_ENV_FILE or ./.env), loaded without replacing variables already set
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEET_SECTION_KEY
// For example: FLEET_DATABASE_PATH, FLEET_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads the .env file into the environment. A missing file is
// not an error.
func loadDotEnv() error {
	path := DefaultDotEnvPath
	if v := os.Getenv(EnvDotEnvPath); v != "" {
		path = v
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "fleet-telemetry",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/fleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleet-telemetry-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 1 << 20,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/fleetd.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
		Telemetry: TelemetryConfig{
			Capacity:     100,
			DefaultLimit: 60,
			StaleAfter:   60,
		},
		Fleet: FleetConfig{
			Origin:              OriginConfig{Lat: 18.5204, Lng: 73.8567},
			ScanRange:           15,
			ScanDelayMS:         2000,
			CommandDelayMS:      1000,
			HistoryPoints:       24,
			BatteryDecayPerHour: 0.5,
			SignalJitter:        5,
			CommandBatteryCost:  0.1,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, v))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	// Database
	setBool("FLEET_DATABASE_ENABLED", &cfg.Database.Enabled)
	setString("FLEET_DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	setBool("FLEET_MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("FLEET_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("FLEET_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("FLEET_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("FLEET_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("FLEET_API_HOST", &cfg.API.Host)
	setInt("FLEET_API_PORT", &cfg.API.Port)

	// InfluxDB
	setBool("FLEET_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("FLEET_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("FLEET_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("FLEET_LOG_LEVEL", &cfg.Logging.Level)
	setString("FLEET_LOG_FORMAT", &cfg.Logging.Format)

	// Fleet
	setFloat("FLEET_ORIGIN_LAT", &cfg.Fleet.Origin.Lat)
	setFloat("FLEET_ORIGIN_LNG", &cfg.Fleet.Origin.Lng)
	setInt("FLEET_SCAN_DELAY_MS", &cfg.Fleet.ScanDelayMS)
	setInt("FLEET_COMMAND_DELAY_MS", &cfg.Fleet.CommandDelayMS)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent checks
	var errs []string

	if c.Service.Name == "" {
		errs = append(errs, "service.name is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	errs = append(errs, c.Telemetry.validate()...)
	errs = append(errs, c.Fleet.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (t TelemetryConfig) validate() []string {
	var errs []string

	if t.Capacity < 1 {
		errs = append(errs, "telemetry.capacity must be at least 1")
	}
	if t.DefaultLimit < 1 {
		errs = append(errs, "telemetry.default_limit must be at least 1")
	}
	if t.StaleAfter < 1 {
		errs = append(errs, "telemetry.stale_after must be at least 1 second")
	}

	seen := make(map[string]bool, len(t.Streams))
	for i, s := range t.Streams {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Sprintf("telemetry.streams[%d].name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("telemetry.streams[%d]: duplicate stream %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Primary == "" {
			errs = append(errs, fmt.Sprintf("telemetry.streams[%d].primary is required", i))
		}
		if s.Capacity < 0 {
			errs = append(errs, fmt.Sprintf("telemetry.streams[%d].capacity must not be negative", i))
		}
	}
	return errs
}

func (f FleetConfig) validate() []string {
	var errs []string

	if f.Origin.Lat < -90 || f.Origin.Lat > 90 || f.Origin.Lng < -180 || f.Origin.Lng > 180 {
		errs = append(errs, "fleet.origin must be a valid latitude/longitude")
	}
	if f.ScanRange <= 0 {
		errs = append(errs, "fleet.scan_range must be positive")
	}
	if f.ScanDelayMS < 0 || f.CommandDelayMS < 0 {
		errs = append(errs, "fleet.scan_delay_ms and fleet.command_delay_ms must not be negative")
	}
	if f.HistoryPoints < 1 {
		errs = append(errs, "fleet.history_points must be at least 1")
	}
	if f.BatteryDecayPerHour < 0 || f.CommandBatteryCost < 0 || f.SignalJitter < 0 {
		errs = append(errs, "fleet battery and jitter settings must not be negative")
	}

	ids := make(map[string]bool, len(f.Catalog))
	for i, d := range f.Catalog {
		if d.ID == "" || d.Name == "" || d.Type == "" {
			errs = append(errs, fmt.Sprintf("fleet.catalog[%d]: id, name and type are required", i))
		}
		if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("fleet.catalog[%d]: duplicate id %q", i, d.ID))
		}
		ids[d.ID] = true
	}

	for i, g := range f.Gateways {
		if g.ID == "" {
			errs = append(errs, fmt.Sprintf("fleet.gateways[%d].id is required", i))
		}
		if g.RadiusKM <= 0 {
			errs = append(errs, fmt.Sprintf("fleet.gateways[%d].radius_km must be positive", i))
		}
	}
	return errs
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

// GetStaleAfter returns the stream freshness threshold as a Duration.
func (c *Config) GetStaleAfter() time.Duration {
	return time.Duration(c.Telemetry.StaleAfter) * time.Second
}

// GetScanDelay returns the modelled scan latency as a Duration.
func (c *Config) GetScanDelay() time.Duration {
	return time.Duration(c.Fleet.ScanDelayMS) * time.Millisecond
}

// GetCommandDelay returns the modelled command latency as a Duration.
func (c *Config) GetCommandDelay() time.Duration {
	return time.Duration(c.Fleet.CommandDelayMS) * time.Millisecond
}
