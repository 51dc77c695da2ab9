// Package config loads and validates the service configuration from a
// YAML file, with environment overrides for deployment secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError = errors.New("configuration error")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: ErrConfigurationError}
}

// HTTPConfig configures the listening socket and public address.
type HTTPConfig struct {
	// Listen is the bind address, e.g. ":8080".
	Listen string `yaml:"listen" json:"listen"`

	// BaseURL is the externally reachable prefix signing links are
	// built on, without a trailing slash.
	BaseURL string `yaml:"base-url" json:"base_url"`
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	if c.Listen == "" {
		return NewConfigError("http.listen", "required field is missing")
	}
	if c.BaseURL == "" {
		return NewConfigError("http.base-url", "required field is missing")
	}
	return nil
}

// StorageConfig selects where documents and session records live.
type StorageConfig struct {
	// DocumentsDir holds the uploaded and signed PDF artifacts.
	DocumentsDir string `yaml:"documents-dir" json:"documents_dir"`

	// Backend is "file" or "postgres".
	Backend string `yaml:"backend" json:"backend"`

	// StateDir holds session and template records for the file
	// backend.
	StateDir string `yaml:"state-dir" json:"state_dir,omitempty"`

	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn" json:"dsn,omitempty"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.DocumentsDir == "" {
		return NewConfigError("storage.documents-dir", "required field is missing")
	}
	switch c.Backend {
	case "file":
		if c.StateDir == "" {
			return NewConfigError("storage.state-dir", "required for the file backend")
		}
	case "postgres":
		if c.DSN == "" {
			return NewConfigError("storage.dsn", "required for the postgres backend")
		}
	default:
		return NewConfigError("storage.backend", fmt.Sprintf("unknown backend %q (valid: file, postgres)", c.Backend))
	}
	return nil
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"password,omitempty"`
	From     string `yaml:"from" json:"from"`

	// TimeoutSeconds bounds one full send, dial included.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout_seconds,omitempty"`
}

// Validate validates the SMTP configuration.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return NewConfigError("smtp.host", "required field is missing")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewConfigError("smtp.port", "must be between 1 and 65535")
	}
	if c.From == "" {
		return NewConfigError("smtp.from", "required field is missing")
	}
	return nil
}

// Timeout returns the configured send timeout.
func (c *SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig configures the optional Redis-backed mail outbox. When
// Host is empty the in-memory queue is used instead.
type RedisConfig struct {
	Host     string `yaml:"host" json:"host,omitempty"`
	Port     int    `yaml:"port" json:"port,omitempty"`
	Password string `yaml:"password" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db,omitempty"`
	Key      string `yaml:"key" json:"key,omitempty"`
}

// Enabled reports whether the Redis outbox is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewConfigError("redis.port", "must be between 1 and 65535")
	}
	return nil
}

// LinksConfig configures signing-link token minting.
type LinksConfig struct {
	// Secret is the HMAC key signing link tokens.
	Secret string `yaml:"secret" json:"-"`

	// TTLHours is how long a mailed link stays valid. Zero selects
	// the built-in default.
	TTLHours int `yaml:"ttl-hours" json:"ttl_hours,omitempty"`
}

// Validate validates the links configuration.
func (c *LinksConfig) Validate() error {
	if c.Secret == "" {
		return NewConfigError("links.secret", "required field is missing")
	}
	if len(c.Secret) < 16 {
		return NewConfigError("links.secret", "must be at least 16 characters")
	}
	return nil
}

// TTL returns the configured link lifetime.
func (c *LinksConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Config is the root service configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	SMTP    SMTPConfig    `yaml:"smtp" json:"smtp"`
	Redis   RedisConfig   `yaml:"redis" json:"redis,omitempty"`
	Links   LinksConfig   `yaml:"links" json:"links"`
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SMTP.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	return c.Links.Validate()
}

// Load reads, overrides and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes, applies SIGNFLOW_* environment
// overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	conf := &Config{
		HTTP: HTTPConfig{Listen: ":8080"},
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, &ConfigError{Message: "invalid YAML", Err: err}
	}
	applyEnv(conf)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyEnv lets deployments inject secrets without writing them into
// the config file.
func applyEnv(conf *Config) {
	if v := os.Getenv("SIGNFLOW_LISTEN"); v != "" {
		conf.HTTP.Listen = v
	}
	if v := os.Getenv("SIGNFLOW_BASE_URL"); v != "" {
		conf.HTTP.BaseURL = v
	}
	if v := os.Getenv("SIGNFLOW_STORAGE_DSN"); v != "" {
		conf.Storage.DSN = v
	}
	if v := os.Getenv("SIGNFLOW_SMTP_PASSWORD"); v != "" {
		conf.SMTP.Password = v
	}
	if v := os.Getenv("SIGNFLOW_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conf.SMTP.Port = port
		}
	}
	if v := os.Getenv("SIGNFLOW_REDIS_PASSWORD"); v != "" {
		conf.Redis.Password = v
	}
	if v := os.Getenv("SIGNFLOW_LINK_SECRET"); v != "" {
		conf.Links.Secret = v
	}
}
