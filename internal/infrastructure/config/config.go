package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Dwellio Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Property  PropertyConfig  `yaml:"property"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Vendors   VendorsConfig   `yaml:"vendors"`
	Sync      SyncConfig      `yaml:"sync"`
	Retry     RetryConfig     `yaml:"retry"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Security  SecurityConfig  `yaml:"security"`
}

// PropertyConfig identifies the property this instance serves.
type PropertyConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
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

// InfluxDBConfig contains InfluxDB connection settings for device
// telemetry.
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

// VendorsConfig holds per-vendor integration settings.
type VendorsConfig struct {
	SmartThings VendorConfig `yaml:"smartthings"`
	Nest        NestConfig   `yaml:"nest"`
	August      VendorConfig `yaml:"august"`
	Hue         HueConfig    `yaml:"hue"`
}

// VendorConfig contains settings common to cloud vendor integrations.
type VendorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// NestConfig contains Nest SDM settings. ProjectID is the SDM project
// the OAuth token is scoped to.
type NestConfig struct {
	VendorConfig `yaml:",inline"`
	ProjectID    string `yaml:"project_id"`
}

// HueConfig contains Hue bridge settings. BridgeURL is the local
// bridge address; Token is the paired application key.
type HueConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	BridgeURL string `yaml:"bridge_url"`
}

// SyncConfig contains state synchronisation settings.
type SyncConfig struct {
	PollInterval int `yaml:"poll_interval"`
}

// RetryConfig contains vendor call retry settings.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`

	// JitterFraction spreads retry delays by up to this fraction so
	// devices on the same vendor do not retry in lockstep. Zero
	// disables jitter.
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// WebhookConfig contains webhook ingestion settings.
type WebhookConfig struct {
	DedupWindow int `yaml:"dedup_window"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT           JWTConfig       `yaml:"jwt"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	RequireStepUp bool            `yaml:"require_step_up"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// RateLimitConfig contains per-user per-device command rate limiting.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxActions    int `yaml:"max_actions"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DWELLIO_SECTION_KEY
// For example: DWELLIO_DATABASE_PATH, DWELLIO_JWT_SECRET
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
		Property: PropertyConfig{
			ID:       "prop-001",
			Name:     "Dwellio",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/dwellio.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dwellio-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
		Sync: SyncConfig{
			PollInterval: 30,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			BaseDelayMS:    500,
			MaxDelayMS:     30000,
			JitterFraction: 0.2,
		},
		Webhook: WebhookConfig{
			DedupWindow: 1024,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
			RateLimit: RateLimitConfig{
				WindowSeconds: 60,
				MaxActions:    10,
			},
			RequireStepUp: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DWELLIO_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DWELLIO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DWELLIO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DWELLIO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DWELLIO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DWELLIO_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("DWELLIO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Vendor tokens are credentials and normally arrive via environment.
	if v := os.Getenv("DWELLIO_SMARTTHINGS_TOKEN"); v != "" {
		cfg.Vendors.SmartThings.Token = v
	}
	if v := os.Getenv("DWELLIO_NEST_TOKEN"); v != "" {
		cfg.Vendors.Nest.Token = v
	}
	if v := os.Getenv("DWELLIO_AUGUST_TOKEN"); v != "" {
		cfg.Vendors.August.Token = v
	}
	if v := os.Getenv("DWELLIO_HUE_TOKEN"); v != "" {
		cfg.Vendors.Hue.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("DWELLIO_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Property.ID == "" {
		errs = append(errs, "property.id is required")
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

	if c.Sync.PollInterval < 1 {
		errs = append(errs, "sync.poll_interval must be at least 1 second")
	}

	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		errs = append(errs, "retry.jitter_fraction must be between 0 and 1")
	}

	if c.Security.RateLimit.MaxActions < 1 {
		errs = append(errs, "security.rate_limit.max_actions must be at least 1")
	}

	// An empty or weak secret would allow forged tokens to operate
	// locks, so the secret is mandatory.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set DWELLIO_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	for _, v := range []struct {
		name    string
		enabled bool
		token   string
	}{
		{"smartthings", c.Vendors.SmartThings.Enabled, c.Vendors.SmartThings.Token},
		{"nest", c.Vendors.Nest.Enabled, c.Vendors.Nest.Token},
		{"august", c.Vendors.August.Enabled, c.Vendors.August.Token},
		{"hue", c.Vendors.Hue.Enabled, c.Vendors.Hue.Token},
	} {
		if v.enabled && v.token == "" {
			errs = append(errs, fmt.Sprintf("vendors.%s.token is required when the vendor is enabled", v.name))
		}
	}
	if c.Vendors.Nest.Enabled && c.Vendors.Nest.ProjectID == "" {
		errs = append(errs, "vendors.nest.project_id is required when nest is enabled")
	}
	if c.Vendors.Hue.Enabled && c.Vendors.Hue.BridgeURL == "" {
		errs = append(errs, "vendors.hue.bridge_url is required when hue is enabled")
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

// GetPollInterval returns the sync poll cadence as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

// GetRateLimitWindow returns the rate limit window as a Duration.
func (c *Config) GetRateLimitWindow() time.Duration {
	return time.Duration(c.Security.RateLimit.WindowSeconds) * time.Second
}
