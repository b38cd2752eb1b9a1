// Package config handles loading and validating keygate configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for keygate.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.keygate/data. Override: KEYGATE_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default (derived from data dir)
	Auth          AuthConfig           `json:"auth" yaml:"auth"`
	SMTP          *SMTPConfig          `json:"smtp,omitempty" yaml:"smtp,omitempty"` // nil = approval emails disabled
	Push          *PushConfig          `json:"push,omitempty" yaml:"push,omitempty"` // nil = push relay disabled
	Sweeper       *SweeperConfig       `json:"sweeper,omitempty" yaml:"sweeper,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	APIKeys             []string        `json:"api_keys" yaml:"api_keys"` // Admin API keys. Override/extend: KEYGATE_API_KEY env var.
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// RateLimitConfig configures per-key rate limiting for the API.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: KEYGATE_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// AuthConfig sets the expiry windows for login requests.
type AuthConfig struct {
	UserRequestExpirationMinutes int `json:"user_request_expiration_minutes" yaml:"user_request_expiration_minutes"`   // Default: 15.
	AdminRequestExpirationHours  int `json:"admin_request_expiration_hours" yaml:"admin_request_expiration_hours"`     // Default: 168 (7 days).
	AfterAdminApprovalHours      int `json:"after_admin_approval_hours" yaml:"after_admin_approval_hours"`             // Default: 12. Window to consume an approved request.
}

// UserRequestExpiration returns the expiry window for device-approved requests
// with a default of 15 minutes.
func (a *AuthConfig) UserRequestExpiration() time.Duration {
	if a != nil && a.UserRequestExpirationMinutes > 0 {
		return time.Duration(a.UserRequestExpirationMinutes) * time.Minute
	}
	return 15 * time.Minute
}

// AdminRequestExpiration returns the expiry window for admin-approved requests
// with a default of 7 days.
func (a *AuthConfig) AdminRequestExpiration() time.Duration {
	if a != nil && a.AdminRequestExpirationHours > 0 {
		return time.Duration(a.AdminRequestExpirationHours) * time.Hour
	}
	return 7 * 24 * time.Hour
}

// AfterAdminApproval returns how long an approved admin request stays usable
// with a default of 12 hours.
func (a *AuthConfig) AfterAdminApproval() time.Duration {
	if a != nil && a.AfterAdminApprovalHours > 0 {
		return time.Duration(a.AfterAdminApprovalHours) * time.Hour
	}
	return 12 * time.Hour
}

// SMTPConfig configures the SMTP sender for approval emails.
// The SMTP password is never stored in config — it is read from the
// KEYGATE_SMTP_PASSWORD env var.
type SMTPConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"` // Default: 587.
	Username string `json:"username" yaml:"username"`
	From     string `json:"from" yaml:"from"`
	TLS      bool   `json:"tls" yaml:"tls"` // Default: true.
}

// PushConfig configures delivery of decided requests back to devices.
type PushConfig struct {
	RelayURL       string `json:"relay_url" yaml:"relay_url"` // HTTP push relay endpoint. Empty = relay disabled.
	RelayToken     string `json:"relay_token,omitempty" yaml:"relay_token,omitempty"` // Override: KEYGATE_PUSH_RELAY_TOKEN env var.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`             // Default: 10.
	WebSocket      bool   `json:"websocket" yaml:"websocket"`                         // Serve the device WebSocket endpoint.
}

// RelayTimeout returns the relay HTTP timeout with a default of 10s.
func (p *PushConfig) RelayTimeout() time.Duration {
	if p != nil && p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// SweeperConfig configures the expired-request purge job.
type SweeperConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"` // Cron expression. Default: "@every 5m".
}

// CronSchedule returns the purge schedule with a default of every 5 minutes.
func (s *SweeperConfig) CronSchedule() string {
	if s != nil && s.Schedule != "" {
		return s.Schedule
	}
	return "@every 5m"
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the metrics path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "keygate"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// DefaultConfigPath returns the default config file path (~/.keygate/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/keygate.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".keygate", "config.yaml")
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Secrets can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides — env vars take precedence over config values.
	if envKey := os.Getenv("KEYGATE_API_KEY"); envKey != "" {
		cfg.Server.APIKeys = append(cfg.Server.APIKeys, envKey)
	}
	if envDSN := os.Getenv("KEYGATE_DB_DSN"); envDSN != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = envDSN
	}
	if envToken := os.Getenv("KEYGATE_PUSH_RELAY_TOKEN"); envToken != "" {
		if cfg.Push == nil {
			cfg.Push = &PushConfig{}
		}
		cfg.Push.RelayToken = envToken
	}

	// Data directory override from environment.
	if envDD := os.Getenv("KEYGATE_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".keygate", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".keygate", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "keygate.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	if len(c.Server.APIKeys) == 0 {
		return fmt.Errorf("server.api_keys must contain at least one key (or set KEYGATE_API_KEY env var)")
	}
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set KEYGATE_DB_DSN env var)")
		}
	}
	if c.SMTP != nil {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when smtp is configured")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("smtp.from is required when smtp is configured")
		}
	}
	if c.Auth.UserRequestExpirationMinutes < 0 {
		return fmt.Errorf("auth.user_request_expiration_minutes must not be negative")
	}
	if c.Auth.AdminRequestExpirationHours < 0 {
		return fmt.Errorf("auth.admin_request_expiration_hours must not be negative")
	}
	return nil
}
