// ABOUTME: Configuration loading and parsing for draftkeep
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by drafts.backend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Defaults applied to unset fields.
const (
	DefaultHTTPAddr     = "127.0.0.1:8484"
	DefaultDelay        = 500 * time.Millisecond
	DefaultIdleTTL      = 10 * time.Minute
	DefaultWriteTimeout = 5 * time.Second
	DefaultMaxOpen      = 1024
)

// MinJWTSecretLength mirrors the verifier's minimum secret size.
const MinJWTSecretLength = 32

// Config represents the complete draftkeep configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Drafts    DraftsConfig    `yaml:"drafts" toml:"drafts"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Serve publicly over HTTPS via Funnel
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
}

// DraftsConfig holds the debounce and pool settings
type DraftsConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // sqlite, file, memory
	Dir     string `yaml:"dir" toml:"dir"`         // directory for the file backend
	MaxOpen int    `yaml:"max_open" toml:"max_open"`

	Delay        time.Duration `yaml:"-" toml:"-"`
	IdleTTL      time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DelayRaw        string `yaml:"delay" toml:"delay"`
	IdleTTLRaw      string `yaml:"idle_ttl" toml:"idle_ttl"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envPath := os.Getenv("DRAFTKEEP_DB_PATH"); envPath != "" {
		cfg.Database.Path = envPath
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

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Drafts.Backend == "" {
		c.Drafts.Backend = BackendSQLite
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Drafts.DelayRaw == "" {
		c.Drafts.Delay = DefaultDelay
	}
	if c.Drafts.IdleTTLRaw == "" {
		c.Drafts.IdleTTL = DefaultIdleTTL
	}
	if c.Drafts.WriteTimeoutRaw == "" {
		c.Drafts.WriteTimeout = DefaultWriteTimeout
	}
	if c.Drafts.MaxOpen == 0 {
		c.Drafts.MaxOpen = DefaultMaxOpen
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
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Drafts.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
		if c.Database.Driver != "sqlite" && c.Database.Driver != "sqlite3" {
			return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
		}
	case BackendFile:
		if c.Drafts.Dir == "" {
			return fmt.Errorf("drafts.dir is required for the file backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("drafts.backend must be sqlite, file or memory, got %q", c.Drafts.Backend)
	}

	if c.Drafts.Delay < 0 {
		return fmt.Errorf("drafts.delay must not be negative")
	}
	if c.Drafts.IdleTTL < 0 {
		return fmt.Errorf("drafts.idle_ttl must not be negative")
	}
	if c.Drafts.WriteTimeout <= 0 {
		return fmt.Errorf("drafts.write_timeout must be positive")
	}
	if c.Drafts.MaxOpen < 0 {
		return fmt.Errorf("drafts.max_open must not be negative")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Drafts.DelayRaw != "" {
		cfg.Drafts.Delay, err = time.ParseDuration(cfg.Drafts.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing delay %q: %w", cfg.Drafts.DelayRaw, err)
		}
	}

	if cfg.Drafts.IdleTTLRaw != "" {
		cfg.Drafts.IdleTTL, err = time.ParseDuration(cfg.Drafts.IdleTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_ttl %q: %w", cfg.Drafts.IdleTTLRaw, err)
		}
	}

	if cfg.Drafts.WriteTimeoutRaw != "" {
		cfg.Drafts.WriteTimeout, err = time.ParseDuration(cfg.Drafts.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Drafts.WriteTimeoutRaw, err)
		}
	}

	return nil
}
