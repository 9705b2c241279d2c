// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/schemaql/adapters/hasher"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Schemas     SchemasConfig      `yaml:"schemas"`
	Connections []ConnectionConfig `yaml:"connections"`
	API         APIConfig          `yaml:"api"`
	Cache       CacheConfig        `yaml:"cache"`
	Engine      EngineConfig       `yaml:"engine"`
	Logging     LoggingConfig      `yaml:"logging"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Admin       AdminConfig        `yaml:"admin"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SchemasConfig configures where schema documents are found.
type SchemasConfig struct {
	Directory string `yaml:"directory"`
	Bundled   *bool  `yaml:"bundled"` // nil means enabled
	Watch     bool   `yaml:"watch"`
}

// BundledEnabled reports whether bundled schemas are searched.
func (s SchemasConfig) BundledEnabled() bool {
	return s.Bundled == nil || *s.Bundled
}

// ConnectionConfig configures one named database connection.
type ConnectionConfig struct {
	Name         string   `yaml:"name"`
	Aliases      []string `yaml:"aliases,omitempty"`
	Driver       string   `yaml:"driver"` // "sqlite" or "postgres"
	DSN          string   `yaml:"dsn"`
	MaxOpenConns int      `yaml:"max_open_conns,omitempty"`
	Default      bool     `yaml:"default,omitempty"`
}

// APIConfig configures calls to api sources.
type APIConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Shards          int           `yaml:"shards"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// EngineConfig configures query processing.
type EngineConfig struct {
	MaxParallel int `yaml:"max_parallel"` // 0 means unbounded
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// AdminConfig guards the debug endpoints.
type AdminConfig struct {
	TokenHash string `yaml:"token_hash,omitempty"` // bcrypt hash; empty leaves /debug open
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	SCHEMAQL_SERVER_HOST         - Server host (default: 0.0.0.0)
//	SCHEMAQL_SERVER_PORT         - Server port (default: 8080)
//	SCHEMAQL_SCHEMAS_DIR         - Schema document directory (default: schemas)
//	SCHEMAQL_SCHEMAS_WATCH       - Evict schemas when documents change
//	SCHEMAQL_DATABASE_DRIVER     - Driver of the default connection (default: sqlite)
//	SCHEMAQL_DATABASE_DSN        - DSN of the default connection (default: schemaql.db)
//	SCHEMAQL_API_CONNECT_TIMEOUT - API connect timeout (default: 5s)
//	SCHEMAQL_API_READ_TIMEOUT    - API read timeout (default: 30s)
//	SCHEMAQL_ENGINE_MAX_PARALLEL - Concurrent sub-queries per batch (default: 16)
//	SCHEMAQL_LOG_LEVEL           - Log level: debug, info, warn, error (default: info)
//	SCHEMAQL_LOG_FORMAT          - Log format: json or console (default: json)
//	SCHEMAQL_METRICS_ENABLED     - Enable /metrics endpoint
//	SCHEMAQL_ADMIN_TOKEN_HASH    - bcrypt hash of the debug endpoint token
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to environment
// variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies SCHEMAQL_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("SCHEMAQL_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SCHEMAQL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCHEMAQL_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SCHEMAQL_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Schema configuration
	if v := os.Getenv("SCHEMAQL_SCHEMAS_DIR"); v != "" {
		cfg.Schemas.Directory = v
	}
	if v := os.Getenv("SCHEMAQL_SCHEMAS_WATCH"); v != "" {
		cfg.Schemas.Watch = parseBool(v)
	}

	// Default connection
	driver, dsn := os.Getenv("SCHEMAQL_DATABASE_DRIVER"), os.Getenv("SCHEMAQL_DATABASE_DSN")
	if driver != "" || dsn != "" {
		conn := defaultConnection(cfg)
		if driver != "" {
			conn.Driver = driver
		}
		if dsn != "" {
			conn.DSN = dsn
		}
	}

	// API configuration
	if v := os.Getenv("SCHEMAQL_API_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.ConnectTimeout = d
		}
	}
	if v := os.Getenv("SCHEMAQL_API_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.ReadTimeout = d
		}
	}

	// Cache and engine configuration
	if v := os.Getenv("SCHEMAQL_CACHE_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Shards = n
		}
	}
	if v := os.Getenv("SCHEMAQL_ENGINE_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxParallel = n
		}
	}

	// Logging configuration
	if v := os.Getenv("SCHEMAQL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCHEMAQL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("SCHEMAQL_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("SCHEMAQL_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Admin configuration
	if v := os.Getenv("SCHEMAQL_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Admin.TokenHash = v
	}
}

// defaultConnection returns the connection that answers to "default",
// adding one when none is configured.
func defaultConnection(cfg *Config) *ConnectionConfig {
	for i := range cfg.Connections {
		if cfg.Connections[i].Default {
			return &cfg.Connections[i]
		}
	}
	if len(cfg.Connections) > 0 {
		return &cfg.Connections[0]
	}
	cfg.Connections = append(cfg.Connections, ConnectionConfig{Name: "default", Default: true})
	return &cfg.Connections[0]
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Schemas.Directory == "" {
		cfg.Schemas.Directory = "schemas"
	}

	if len(cfg.Connections) == 0 {
		cfg.Connections = []ConnectionConfig{{Name: "default", Default: true}}
	}
	for i := range cfg.Connections {
		c := &cfg.Connections[i]
		if c.Driver == "" {
			c.Driver = "sqlite"
		}
		if c.DSN == "" && isSQLite(c.Driver) {
			c.DSN = "schemaql.db"
		}
	}

	if cfg.API.ConnectTimeout == 0 {
		cfg.API.ConnectTimeout = 5 * time.Second
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = 30 * time.Second
	}
	if cfg.API.MaxIdleConns == 0 {
		cfg.API.MaxIdleConns = 100
	}
	if cfg.API.IdleConnTimeout == 0 {
		cfg.API.IdleConnTimeout = 90 * time.Second
	}
	if cfg.API.MaxBodySize == 0 {
		cfg.API.MaxBodySize = 50 << 20
	}

	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = 32
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = 5 * time.Minute
	}

	if cfg.Engine.MaxParallel == 0 {
		cfg.Engine.MaxParallel = 16
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 0 and 65535, got %d", cfg.Server.Port))
	}

	validDrivers := map[string]bool{"sqlite": true, "sqlite3": true, "postgres": true, "postgresql": true, "pgx": true}
	names := make(map[string]bool)
	defaults := 0
	for i, c := range cfg.Connections {
		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("connections[%d].name is required", i))
		}
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			key := strings.ToLower(n)
			if key != "" && names[key] {
				errs = append(errs, fmt.Sprintf("connections[%d]: name %q is used more than once", i, n))
			}
			names[key] = true
		}
		if !validDrivers[strings.ToLower(c.Driver)] {
			errs = append(errs, fmt.Sprintf("connections[%d].driver must be sqlite or postgres, got %q", i, c.Driver))
		}
		if c.DSN == "" {
			errs = append(errs, fmt.Sprintf("connections[%d].dsn is required", i))
		}
		if c.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, "at most one connection may be marked default")
	}

	if cfg.Engine.MaxParallel < 0 {
		errs = append(errs, "engine.max_parallel must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		errs = append(errs, fmt.Sprintf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format))
	}

	if cfg.Admin.TokenHash != "" {
		if !hasher.IsHash(cfg.Admin.TokenHash) {
			errs = append(errs, "admin.token_hash must be a bcrypt hash")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
