package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing values applied when the YAML omits them.
const (
	defaultStatusPollMs  = 250
	defaultInitTimeoutS  = 10
	defaultStartTimeoutS = 5
	defaultStopTimeoutS  = 5
	defaultCloseTimeoutS = 5
	defaultQueueCapacity = 256
)

// Config is the root configuration structure for labrig.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Devices  []DeviceConfig `yaml:"devices"`
	Data     DataConfig     `yaml:"data"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionConfig describes one experimental run.
type SessionConfig struct {
	// ExperimentID identifies the experiment this run belongs to.
	ExperimentID string `yaml:"experiment_id"`

	// Experimenter is the name of the person running the session.
	Experimenter string `yaml:"experimenter"`

	// DurationSeconds is the timed run length. Zero means the run ends
	// only on an explicit stop request or trigger.
	DurationSeconds int `yaml:"duration_seconds"`

	// StartOnTrigger keeps the session in the run phase until an external
	// stop trigger arrives instead of a fixed duration.
	StartOnTrigger bool `yaml:"start_on_trigger"`

	// StatusPollMs is how often device status is polled for runtime faults.
	StatusPollMs int `yaml:"status_poll_ms"`

	// Per-operation timeouts for lifecycle calls against devices.
	InitTimeoutSeconds  int `yaml:"init_timeout_seconds"`
	StartTimeoutSeconds int `yaml:"start_timeout_seconds"`
	StopTimeoutSeconds  int `yaml:"stop_timeout_seconds"`
	CloseTimeoutSeconds int `yaml:"close_timeout_seconds"`
}

// DeviceConfig is one resolved hardware entry. The orchestrator treats
// Params as opaque; each driver extracts what it needs.
type DeviceConfig struct {
	// Type is the registered device type name (e.g. "encoder", "camera").
	Type string `yaml:"type"`

	// ID is the logical device name, unique within the session.
	ID string `yaml:"id"`

	// Overflow selects the queue policy for this device's channel:
	// "drop_oldest" (default, favours liveness) or "block" (favours
	// completeness).
	Overflow string `yaml:"overflow"`

	// Buffer is the channel capacity. Zero uses the data.queue_capacity
	// default.
	Buffer int `yaml:"buffer"`

	// Params holds driver-specific settings (baud rate, fps, lines, ...).
	Params map[string]any `yaml:"params"`
}

// DataConfig contains data-collection settings.
type DataConfig struct {
	// QueueCapacity is the default per-device channel capacity.
	QueueCapacity int `yaml:"queue_capacity"`

	// CSVLog controls the per-session CSV record log.
	CSVLog CSVLogConfig `yaml:"csv_log"`
}

// CSVLogConfig contains settings for the CSV queue logger.
type CSVLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DatabaseConfig contains SQLite session archive settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the record sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains snapshot HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	WS       WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live-stream WebSocket settings.
type WebSocketConfig struct {
	Path       string `yaml:"path"`
	SendBuffer int    `yaml:"send_buffer"`
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
// Environment variables follow the pattern: LABRIG_SECTION_KEY
// For example: LABRIG_DATABASE_PATH, LABRIG_MQTT_HOST
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
		Session: SessionConfig{
			ExperimentID:        "default-experiment",
			Experimenter:        "researcher",
			DurationSeconds:     60,
			StatusPollMs:        defaultStatusPollMs,
			InitTimeoutSeconds:  defaultInitTimeoutS,
			StartTimeoutSeconds: defaultStartTimeoutS,
			StopTimeoutSeconds:  defaultStopTimeoutS,
			CloseTimeoutSeconds: defaultCloseTimeoutS,
		},
		Data: DataConfig{
			QueueCapacity: defaultQueueCapacity,
			CSVLog: CSVLogConfig{
				Enabled: true,
				Dir:     "./data",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/labrig.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "labrig-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WS: WebSocketConfig{
				Path:       "/api/v1/ws",
				SendBuffer: 64,
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
// Environment variables follow the pattern: LABRIG_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Session
	if v := os.Getenv("LABRIG_SESSION_DURATION"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Session.DurationSeconds = secs
		}
	}
	if v := os.Getenv("LABRIG_SESSION_EXPERIMENTER"); v != "" {
		cfg.Session.Experimenter = v
	}

	// Database
	if v := os.Getenv("LABRIG_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LABRIG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LABRIG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LABRIG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LABRIG_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("LABRIG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Session.ExperimentID == "" {
		errs = append(errs, "session.experiment_id is required")
	}
	if c.Session.DurationSeconds <= 0 && !c.Session.StartOnTrigger {
		errs = append(errs, "session.duration_seconds must be positive unless start_on_trigger is set")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Type == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].type is required", i))
		}
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		} else if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is not unique", i, d.ID))
		}
		seen[d.ID] = true

		switch d.Overflow {
		case "", "drop_oldest", "block":
		default:
			errs = append(errs, fmt.Sprintf("devices[%d].overflow must be drop_oldest or block", i))
		}
		if d.Buffer < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].buffer must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Duration returns the configured run length.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Session.DurationSeconds) * time.Second
}

// StatusPollInterval returns how often device status is polled during a run.
func (c *Config) StatusPollInterval() time.Duration {
	if c.Session.StatusPollMs <= 0 {
		return defaultStatusPollMs * time.Millisecond
	}
	return time.Duration(c.Session.StatusPollMs) * time.Millisecond
}

// InitTimeout returns the per-device initialize timeout.
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.Session.InitTimeoutSeconds) * time.Second
}

// StartTimeout returns the per-device start timeout.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Session.StartTimeoutSeconds) * time.Second
}

// StopTimeout returns the per-device stop timeout.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Session.StopTimeoutSeconds) * time.Second
}

// CloseTimeout returns the per-device close timeout.
func (c *Config) CloseTimeout() time.Duration {
	return time.Duration(c.Session.CloseTimeoutSeconds) * time.Second
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
