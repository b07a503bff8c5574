// ABOUTME: Configuration loading and parsing for mcpconnect
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete mcpconnect configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the console API listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" validate:"required,hostname_port"`
}

// DatabaseConfig holds SQLite database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// AuthConfig holds console API authentication configuration
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret" validate:"required_if=Enabled true"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// UpstreamConfig holds timing configuration for upstream MCP servers
type UpstreamConfig struct {
	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// BridgeConfig points at the LLM bridge that produces turn event streams.
// When unset, POST /api/send reports the upstream as unavailable.
type BridgeConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// DedupeConfig holds the send-request dedupe cache configuration
type DedupeConfig struct {
	MaxEntries int `yaml:"max_entries" validate:"omitempty,gt=0"`

	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults applied by Load when the file leaves a field unset.
const (
	defaultTokenTTL       = 24 * time.Hour
	defaultRequestTimeout = 30 * time.Second
	defaultDedupeTTL      = 5 * time.Minute
	defaultDedupeEntries  = 10000
	defaultMetricsPath    = "/metrics"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields that have sensible defaults.
func (c *Config) applyDefaults() {
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = defaultTokenTTL
	}
	if c.Upstream.RequestTimeout == 0 {
		c.Upstream.RequestTimeout = defaultRequestTimeout
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = defaultDedupeTTL
	}
	if c.Dedupe.MaxEntries == 0 {
		c.Dedupe.MaxEntries = defaultDedupeEntries
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Upstream.RequestTimeoutRaw != "" {
		cfg.Upstream.RequestTimeout, err = time.ParseDuration(cfg.Upstream.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.request_timeout %q: %w", cfg.Upstream.RequestTimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
