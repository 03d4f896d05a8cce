package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HomeHub Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	KV        KVConfig        `yaml:"kv"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings for the local KV backend.
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
// MaxAttempts bounds the initial connection attempts; 0 means retry until cancelled.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
	JWT  JWTConfig  `yaml:"jwt"`
}

// AuthConfig controls bearer-token protection of the API.
// PasswordHash is an Argon2id PHC string checked by POST /auth/login.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PasswordHash string `yaml:"password_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// KV backends.
const (
	KVBackendREST   = "rest"
	KVBackendRedis  = "redis"
	KVBackendSQLite = "sqlite"
)

// KVConfig selects and configures the key-value persistence backend.
type KVConfig struct {
	Backend    string      `yaml:"backend"`
	URL        string      `yaml:"url"`
	Timeout    int         `yaml:"timeout"`
	DebounceMS int         `yaml:"debounce_ms"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings for the redis KV backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DevicesConfig contains device adapter settings.
type DevicesConfig struct {
	CommandTimeout   int       `yaml:"command_timeout"`
	StateWaitTimeout int       `yaml:"state_wait_timeout"`
	PollInterval     int       `yaml:"poll_interval"`
	Hue              HueConfig `yaml:"hue"`
}

// HueConfig locates the local Hue bridge.
type HueConfig struct {
	BridgeHost string `yaml:"bridge_host"`
	Username   string `yaml:"username"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEHUB_SECTION_KEY
// For example: HOMEHUB_KV_URL, HOMEHUB_MQTT_HOST
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
			ID:   "home",
			Name: "HomeHub",
		},
		Database: DatabaseConfig{
			Path:        "./data/homehub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homehub-core",
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
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		KV: KVConfig{
			Backend:    KVBackendREST,
			URL:        "http://localhost:8787",
			Timeout:    5,
			DebounceMS: 500,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "homehub:",
			},
		},
		Devices: DevicesConfig{
			CommandTimeout:   5,
			StateWaitTimeout: 10,
			PollInterval:     30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMEHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HOMEHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEHUB_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HOMEHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HOMEHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("HOMEHUB_KV_BACKEND"); v != "" {
		cfg.KV.Backend = v
	}
	if v := os.Getenv("HOMEHUB_KV_URL"); v != "" {
		cfg.KV.URL = v
	}
	if v := os.Getenv("HOMEHUB_REDIS_ADDR"); v != "" {
		cfg.KV.Redis.Addr = v
	}
	if v := os.Getenv("HOMEHUB_REDIS_PASSWORD"); v != "" {
		cfg.KV.Redis.Password = v
	}

	if v := os.Getenv("HOMEHUB_HUE_BRIDGE_HOST"); v != "" {
		cfg.Devices.Hue.BridgeHost = v
	}
	if v := os.Getenv("HOMEHUB_HUE_USERNAME"); v != "" {
		cfg.Devices.Hue.Username = v
	}

	if v := os.Getenv("HOMEHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HOMEHUB_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		// Reconnect attempts must never spin in a tight loop.
		if c.MQTT.Reconnect.InitialDelay < 1 {
			errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1 second")
		}
		if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
			errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.KV.Backend {
	case KVBackendREST:
		if c.KV.URL == "" {
			errs = append(errs, "kv.url is required for the rest backend")
		}
	case KVBackendRedis:
		if c.KV.Redis.Addr == "" {
			errs = append(errs, "kv.redis.addr is required for the redis backend")
		}
	case KVBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("kv.backend %q must be one of rest, redis, sqlite", c.KV.Backend))
	}
	if c.KV.DebounceMS < 0 {
		errs = append(errs, "kv.debounce_ms must not be negative")
	}

	if c.Devices.CommandTimeout < 1 {
		errs = append(errs, "devices.command_timeout must be at least 1 second")
	}

	if c.Security.Auth.Enabled {
		const minJWTSecretLength = 32
		if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters when auth is enabled (set HOMEHUB_JWT_SECRET)")
		}
		if c.Security.Auth.PasswordHash == "" {
			errs = append(errs, "security.auth.password_hash is required when auth is enabled")
		}
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

// CommandTimeout returns the per-command adapter timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Devices.CommandTimeout) * time.Second
}

// StateWaitTimeout returns how long to wait for an MQTT state confirmation.
func (c *Config) StateWaitTimeout() time.Duration {
	return time.Duration(c.Devices.StateWaitTimeout) * time.Second
}

// PollInterval returns the HTTP/Hue refresh interval. Zero disables polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Devices.PollInterval) * time.Second
}

// DebounceWindow returns the KV write coalescing window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.KV.DebounceMS) * time.Millisecond
}

// KVTimeout returns the timeout for a single KV request.
func (c *Config) KVTimeout() time.Duration {
	return time.Duration(c.KV.Timeout) * time.Second
}
