// Package config provides configuration management for the authflow binaries.
// It loads YAML or TOML files, applies AUTHFLOW_* environment overrides and
// maps the provider section onto an authflow.FlowConfig.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"github.com/router-for-me/authflow/sdk/authflow"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "AUTHFLOW_"

const (
	DefaultPort            = 8080
	DefaultLogsMaxSizeMB   = 10
	DefaultCallbackTimeout = 5 * time.Minute
	DefaultMetricsPath     = "/metrics"
)

// Store types accepted in the store section.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreCookie   = "cookie"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

// Config represents the application's configuration, loaded from a YAML or TOML file.
type Config struct {
	// Host is the interface the web host binds to. Empty binds all interfaces.
	Host string `yaml:"host" toml:"host" json:"host" env:"HOST"`

	// Port is the web host's listen port.
	Port int `yaml:"port" toml:"port" json:"port" env:"PORT"`

	// Debug enables debug logging and gin debug mode.
	Debug bool `yaml:"debug" toml:"debug" json:"debug" env:"DEBUG"`

	// LogLevel is one of debug, info, warn, error, quiet. Debug forces debug.
	LogLevel string `yaml:"log-level" toml:"log-level" json:"log-level" env:"LOG_LEVEL"`

	// LoggingToFile writes logs to rotating files in LogDir instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" toml:"logging-to-file" json:"logging-to-file" env:"LOGGING_TO_FILE"`

	// LogDir is where log files go. Empty means ./logs.
	LogDir string `yaml:"log-dir" toml:"log-dir" json:"log-dir" env:"LOG_DIR"`

	// LogsMaxSizeMB is the size at which a log file is rotated.
	LogsMaxSizeMB int `yaml:"logs-max-size-mb" toml:"logs-max-size-mb" json:"logs-max-size-mb" env:"LOGS_MAX_SIZE_MB"`

	// Provider describes the identity provider client.
	Provider ProviderConfig `yaml:"provider" toml:"provider" json:"provider" envPrefix:"PROVIDER_"`

	// Store selects where fingerprints are persisted across the redirect.
	Store StoreConfig `yaml:"store" toml:"store" json:"store" envPrefix:"STORE_"`

	// Callback configures the CLI's loopback redirect listener.
	Callback CallbackConfig `yaml:"callback" toml:"callback" json:"callback" envPrefix:"CALLBACK_"`

	// Metrics toggles the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics" envPrefix:"METRICS_"`
}

// ProviderConfig is the identity provider section.
type ProviderConfig struct {
	ClientID              string   `yaml:"client-id" toml:"client-id" json:"client-id" env:"CLIENT_ID"`
	AuthorizationEndpoint string   `yaml:"authorization-endpoint" toml:"authorization-endpoint" json:"authorization-endpoint" env:"AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string   `yaml:"token-endpoint" toml:"token-endpoint" json:"token-endpoint" env:"TOKEN_ENDPOINT"`
	RedirectURI           string   `yaml:"redirect-uri" toml:"redirect-uri" json:"redirect-uri" env:"REDIRECT_URI"`
	Scopes                []string `yaml:"scopes,omitempty" toml:"scopes,omitempty" json:"scopes,omitempty" env:"SCOPES" envSeparator:","`
	OfflineAccess         bool     `yaml:"offline-access" toml:"offline-access" json:"offline-access" env:"OFFLINE_ACCESS"`

	// TimeoutSeconds bounds the token request. <= 0 uses the library default.
	TimeoutSeconds int `yaml:"timeout-seconds,omitempty" toml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty" env:"TIMEOUT_SECONDS"`

	// MaxAttemptAgeSeconds rejects redirects for attempts older than this. <= 0 disables the check.
	MaxAttemptAgeSeconds int `yaml:"max-attempt-age-seconds,omitempty" toml:"max-attempt-age-seconds,omitempty" json:"max-attempt-age-seconds,omitempty" env:"MAX_ATTEMPT_AGE_SECONDS"`
}

// StoreConfig is the fingerprint store section. Which fields apply depends on Type.
type StoreConfig struct {
	// Type is one of memory, file, cookie, sqlite, redis, postgres, s3.
	Type string `yaml:"type" toml:"type" json:"type" env:"TYPE"`

	// Path is the file store directory or the SQLite database file.
	Path string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty" env:"PATH"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn,omitempty" toml:"dsn,omitempty" json:"-" env:"DSN"`

	// RedisURL is a redis:// URL.
	RedisURL string `yaml:"redis-url,omitempty" toml:"redis-url,omitempty" json:"-" env:"REDIS_URL"`

	// Endpoint, Bucket, Region, AccessKey, SecretKey and UseSSL describe an S3 compatible bucket.
	Endpoint  string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty" json:"endpoint,omitempty" env:"ENDPOINT"`
	Bucket    string `yaml:"bucket,omitempty" toml:"bucket,omitempty" json:"bucket,omitempty" env:"BUCKET"`
	Region    string `yaml:"region,omitempty" toml:"region,omitempty" json:"region,omitempty" env:"REGION"`
	AccessKey string `yaml:"access-key,omitempty" toml:"access-key,omitempty" json:"-" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret-key,omitempty" toml:"secret-key,omitempty" json:"-" env:"SECRET_KEY"`
	UseSSL    bool   `yaml:"use-ssl,omitempty" toml:"use-ssl,omitempty" json:"use-ssl,omitempty" env:"USE_SSL"`

	// Secret seals cookie store values. At least 32 bytes.
	Secret string `yaml:"secret,omitempty" toml:"secret,omitempty" json:"-" env:"SECRET"`

	// InsecureCookie drops the Secure cookie attribute for plain-HTTP development.
	InsecureCookie bool `yaml:"insecure-cookie,omitempty" toml:"insecure-cookie,omitempty" json:"insecure-cookie,omitempty" env:"INSECURE_COOKIE"`

	// TTLSeconds bounds how long a pending attempt is kept where the backend supports expiry.
	TTLSeconds int `yaml:"ttl-seconds,omitempty" toml:"ttl-seconds,omitempty" json:"ttl-seconds,omitempty" env:"TTL_SECONDS"`
}

// CallbackConfig is the loopback listener section.
type CallbackConfig struct {
	// Listen overrides the address derived from the redirect URI.
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty" env:"LISTEN"`

	// TimeoutSeconds is how long the CLI waits for the browser to come back.
	TimeoutSeconds int `yaml:"timeout-seconds,omitempty" toml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty" env:"TIMEOUT_SECONDS"`
}

// MetricsConfig is the metrics section.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty" env:"PATH"`
}

// LoadConfig reads the configuration file at path. A missing file is an error.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional reads the configuration file at path. When optional is true a missing
// or unparsable file yields the defaults instead of an error. Environment overrides are
// applied in both cases.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if errParse := unmarshal(path, data, cfg); errParse != nil {
			if !optional {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, errParse)
			}
			cfg = &Config{}
		}
	case errors.Is(err, os.ErrNotExist) && optional:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogsMaxSizeMB <= 0 {
		c.LogsMaxSizeMB = DefaultLogsMaxSizeMB
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	if c.Store.Type == "" {
		c.Store.Type = StoreFile
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// ValidateConfig checks the configuration and returns warnings for settings that are
// accepted but likely wrong.
func ValidateConfig(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}

	var warnings []string
	switch cfg.Store.Type {
	case "", StoreMemory, StoreFile, StoreSQLite:
	case StoreCookie:
		if len(cfg.Store.Secret) < 32 {
			return nil, errors.New("store.secret must be at least 32 bytes for the cookie store")
		}
		if cfg.Store.InsecureCookie {
			warnings = append(warnings, "store.insecure-cookie is set; fingerprint cookies are sent over plain HTTP")
		}
	case StoreRedis:
		if cfg.Store.RedisURL == "" {
			return nil, errors.New("store.redis-url is required for the redis store")
		}
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return nil, errors.New("store.dsn is required for the postgres store")
		}
	case StoreS3:
		if cfg.Store.Endpoint == "" || cfg.Store.Bucket == "" {
			return nil, errors.New("store.endpoint and store.bucket are required for the s3 store")
		}
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}

	if strings.HasPrefix(strings.ToLower(cfg.Provider.TokenEndpoint), "http://") {
		warnings = append(warnings, "provider.token-endpoint uses plain HTTP")
	}
	return warnings, nil
}

// FlowConfig validates the provider section.
func (c *Config) FlowConfig() (*authflow.FlowConfig, error) {
	p := c.Provider
	var opts []authflow.FlowOption
	if p.TimeoutSeconds > 0 {
		opts = append(opts, authflow.WithHTTPClient(&http.Client{Timeout: time.Duration(p.TimeoutSeconds) * time.Second}))
	}
	return authflow.ParseFlowConfig(authflow.ProviderConfig{
		ClientID:              p.ClientID,
		AuthorizationEndpoint: p.AuthorizationEndpoint,
		TokenEndpoint:         p.TokenEndpoint,
		RedirectURI:           p.RedirectURI,
		Scopes:                p.Scopes,
		OfflineAccess:         p.OfflineAccess,
	}, opts...)
}

// ExchangeOptions returns the completer options implied by the provider section.
func (c *Config) ExchangeOptions() []authflow.ExchangeOption {
	if c.Provider.MaxAttemptAgeSeconds <= 0 {
		return nil
	}
	return []authflow.ExchangeOption{
		authflow.WithMaxFingerprintAge(time.Duration(c.Provider.MaxAttemptAgeSeconds) * time.Second),
	}
}

// CallbackTimeout returns the loopback wait timeout.
func (c *Config) CallbackTimeout() time.Duration {
	if c.Callback.TimeoutSeconds <= 0 {
		return DefaultCallbackTimeout
	}
	return time.Duration(c.Callback.TimeoutSeconds) * time.Second
}

// StoreTTL returns the pending attempt lifetime, or zero for the backend default.
func (s StoreConfig) StoreTTL() time.Duration {
	if s.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.TTLSeconds) * time.Second
}
