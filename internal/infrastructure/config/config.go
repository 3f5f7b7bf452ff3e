package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for skysync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Sky       SkyConfig       `yaml:"sky"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SkyConfig contains the remote account and push subscription settings.
type SkyConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// APIURL is the base URL of the request/response API (trailing slash optional).
	APIURL string `yaml:"api_url"`

	// Panels restricts the mirror to these panel ids. Empty means every panel
	// the authorised user can see.
	Panels []string `yaml:"panels"`

	// RequestTimeout bounds each request/response call (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	PubNub PubNubConfig `yaml:"pubnub"`
}

// PubNubConfig contains push subscription settings.
type PubNubConfig struct {
	SubscribeKey  string `yaml:"subscribe_key"`
	ChannelPrefix string `yaml:"channel_prefix"`

	// ConnectTimeout bounds how long Connect waits for the initial
	// "connected" status (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// DatabaseConfig contains SQLite settings for the change journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes journal entries older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// Commands enables the .../set command topics.
	Commands bool `yaml:"commands"`
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
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	Auth      APIAuthConfig    `yaml:"auth"`
	Dashboard DashboardConfig  `yaml:"dashboard"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// APIAuthConfig contains bearer token settings for the local API.
// An empty JWTSecret leaves the API open, which suits a loopback listener.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens (minutes).
	TokenTTL int `yaml:"token_ttl"`
}

// DashboardConfig controls the status page served at the API root.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the page from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// WebSocketConfig contains WebSocket change-stream settings.
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
// Environment variables follow the pattern: SKYSYNC_SECTION_KEY
// For example: SKYSYNC_SKY_PASSWORD, SKYSYNC_MQTT_HOST
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
		Sky: SkyConfig{
			APIURL:         "https://www.vivintsky.com/api/",
			RequestTimeout: 30,
			PubNub: PubNubConfig{
				SubscribeKey:   "sub-c-6fb03d68-6a78-11e2-ae8f-12313f022c90",
				ChannelPrefix:  "PlatformChannel#",
				ConnectTimeout: 30,
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/skysync.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "skysync",
			},
			QoS:         1,
			TopicPrefix: "skysync",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
			Auth: APIAuthConfig{
				TokenTTL: 60 * 24 * 30,
			},
			Dashboard: DashboardConfig{
				Enabled: true,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SKYSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account credentials belong in the environment, not the file.
	if v := os.Getenv("SKYSYNC_SKY_USERNAME"); v != "" {
		cfg.Sky.Username = v
	}
	if v := os.Getenv("SKYSYNC_SKY_PASSWORD"); v != "" {
		cfg.Sky.Password = v
	}
	if v := os.Getenv("SKYSYNC_SKY_API_URL"); v != "" {
		cfg.Sky.APIURL = v
	}

	if v := os.Getenv("SKYSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SKYSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SKYSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SKYSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SKYSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SKYSYNC_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	if v := os.Getenv("SKYSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Sky.Username == "" {
		errs = append(errs, "sky.username is required (set SKYSYNC_SKY_USERNAME)")
	}
	if c.Sky.Password == "" {
		errs = append(errs, "sky.password is required (set SKYSYNC_SKY_PASSWORD)")
	}
	if c.Sky.APIURL == "" {
		errs = append(errs, "sky.api_url is required")
	}
	if c.Sky.PubNub.SubscribeKey == "" {
		errs = append(errs, "sky.pubnub.subscribe_key is required")
	}
	if c.Sky.RequestTimeout < 0 {
		errs = append(errs, "sky.request_timeout must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	const minJWTSecretLength = 32
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the request/response call timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Sky.RequestTimeout) * time.Second
}

// GetConnectTimeout returns the push subscription connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Sky.PubNub.ConnectTimeout) * time.Second
}

// GetRetention returns the journal retention period, or 0 to keep everything.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// GetTokenTTL returns the lifetime of issued API tokens.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.API.Auth.TokenTTL) * time.Minute
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
