package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/schemaql/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 15s

schemas:
  directory: "/etc/schemaql/schemas"
  bundled: false
  watch: true

connections:
  - name: ledger
    aliases: [LedgerDB]
    driver: postgres
    dsn: "postgres://localhost/ledger"
    max_open_conns: 8
    default: true
  - name: customers
    driver: sqlite
    dsn: ":memory:"

api:
  read_timeout: 10s

cache:
  shards: 8

engine:
  max_parallel: 4

logging:
  level: debug
  format: console
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.Server.RequestTimeout)
	}
	if cfg.Schemas.BundledEnabled() {
		t.Error("bundled schemas should be disabled")
	}
	if !cfg.Schemas.Watch {
		t.Error("Schemas.Watch should be true")
	}
	if len(cfg.Connections) != 2 {
		t.Fatalf("len(Connections) = %d, want 2", len(cfg.Connections))
	}
	ledger := cfg.Connections[0]
	if ledger.Name != "ledger" || ledger.Driver != "postgres" || !ledger.Default || ledger.MaxOpenConns != 8 {
		t.Errorf("Connections[0] = %+v", ledger)
	}
	if len(ledger.Aliases) != 1 || ledger.Aliases[0] != "LedgerDB" {
		t.Errorf("Aliases = %v, want [LedgerDB]", ledger.Aliases)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("API.ReadTimeout = %v, want 10s", cfg.API.ReadTimeout)
	}
	if cfg.Cache.Shards != 8 {
		t.Errorf("Cache.Shards = %d, want 8", cfg.Cache.Shards)
	}
	if cfg.Engine.MaxParallel != 4 {
		t.Errorf("Engine.MaxParallel = %d, want 4", cfg.Engine.MaxParallel)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s, want console", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "server: {}\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Schemas.Directory != "schemas" {
		t.Errorf("default Schemas.Directory = %s, want schemas", cfg.Schemas.Directory)
	}
	if !cfg.Schemas.BundledEnabled() {
		t.Error("bundled schemas should be enabled by default")
	}
	if len(cfg.Connections) != 1 {
		t.Fatalf("default connections = %d, want 1", len(cfg.Connections))
	}
	if c := cfg.Connections[0]; c.Name != "default" || c.Driver != "sqlite" || c.DSN != "schemaql.db" || !c.Default {
		t.Errorf("default connection = %+v", c)
	}
	if cfg.API.ConnectTimeout != 5*time.Second {
		t.Errorf("default API.ConnectTimeout = %v, want 5s", cfg.API.ConnectTimeout)
	}
	if cfg.Cache.Shards != 32 {
		t.Errorf("default Cache.Shards = %d, want 32", cfg.Cache.Shards)
	}
	if cfg.Engine.MaxParallel != 16 {
		t.Errorf("default Engine.MaxParallel = %d, want 16", cfg.Engine.MaxParallel)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LEDGER_DSN", "postgres://db/ledger")

	cfg := writeAndLoad(t, `
connections:
  - name: ledger
    driver: postgres
    dsn: "${TEST_LEDGER_DSN}"
`)

	if cfg.Connections[0].DSN != "postgres://db/ledger" {
		t.Errorf("DSN = %s, want postgres://db/ledger", cfg.Connections[0].DSN)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name: "unknown driver",
			content: `
connections:
  - name: x
    driver: oracle
    dsn: "x"
`,
			wantMsg: "driver must be sqlite or postgres",
		},
		{
			name: "missing name",
			content: `
connections:
  - driver: sqlite
`,
			wantMsg: "name is required",
		},
		{
			name: "postgres without dsn",
			content: `
connections:
  - name: x
    driver: postgres
`,
			wantMsg: "dsn is required",
		},
		{
			name: "duplicate alias",
			content: `
connections:
  - name: ledger
    driver: sqlite
  - name: other
    aliases: [Ledger]
    driver: sqlite
`,
			wantMsg: "used more than once",
		},
		{
			name: "two defaults",
			content: `
connections:
  - name: a
    default: true
  - name: b
    default: true
`,
			wantMsg: "at most one connection",
		},
		{
			name:    "negative parallelism",
			content: "engine:\n  max_parallel: -1\n",
			wantMsg: "max_parallel",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: loud\n",
			wantMsg: "logging.level",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantMsg: "logging.format",
		},
		{
			name:    "plain admin token",
			content: "admin:\n  token_hash: not-a-hash\n",
			wantMsg: "bcrypt hash",
		},
		{
			name:    "port out of range",
			content: "server:\n  port: 70000\n",
			wantMsg: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_AdminTokenHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cfg := writeAndLoad(t, "admin:\n  token_hash: '"+string(hash)+"'\n")
	if cfg.Admin.TokenHash != string(hash) {
		t.Errorf("TokenHash = %s, want %s", cfg.Admin.TokenHash, hash)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCHEMAQL_SERVER_PORT", "9191")
	t.Setenv("SCHEMAQL_SCHEMAS_DIR", "/srv/schemas")
	t.Setenv("SCHEMAQL_SCHEMAS_WATCH", "yes")
	t.Setenv("SCHEMAQL_DATABASE_DRIVER", "postgres")
	t.Setenv("SCHEMAQL_DATABASE_DSN", "postgres://localhost/app")
	t.Setenv("SCHEMAQL_ENGINE_MAX_PARALLEL", "3")
	t.Setenv("SCHEMAQL_LOG_LEVEL", "warn")
	t.Setenv("SCHEMAQL_METRICS_ENABLED", "1")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Schemas.Directory != "/srv/schemas" || !cfg.Schemas.Watch {
		t.Errorf("Schemas = %+v", cfg.Schemas)
	}
	if len(cfg.Connections) != 1 {
		t.Fatalf("len(Connections) = %d, want 1", len(cfg.Connections))
	}
	if c := cfg.Connections[0]; c.Driver != "postgres" || c.DSN != "postgres://localhost/app" || !c.Default {
		t.Errorf("default connection = %+v", c)
	}
	if cfg.Engine.MaxParallel != 3 {
		t.Errorf("MaxParallel = %d, want 3", cfg.Engine.MaxParallel)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SCHEMAQL_SERVER_PORT", "7000")
	t.Setenv("SCHEMAQL_DATABASE_DSN", "/tmp/override.db")

	cfg := writeAndLoad(t, `
server:
  port: 9090
connections:
  - name: main
    driver: sqlite
    dsn: file.db
  - name: other
    driver: sqlite
    dsn: other.db
    default: true
`)

	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want env override 7000", cfg.Server.Port)
	}
	if cfg.Connections[0].DSN != "file.db" {
		t.Errorf("non-default DSN = %s, want file.db", cfg.Connections[0].DSN)
	}
	if cfg.Connections[1].DSN != "/tmp/override.db" {
		t.Errorf("default DSN = %s, want /tmp/override.db", cfg.Connections[1].DSN)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("SCHEMAQL_SERVER_PORT", "not-a-number")
	t.Setenv("SCHEMAQL_API_READ_TIMEOUT", "soon")
	t.Setenv("SCHEMAQL_CACHE_SHARDS", "many")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.API.ReadTimeout != 30*time.Second {
		t.Errorf("API.ReadTimeout = %v, want default 30s", cfg.API.ReadTimeout)
	}
	if cfg.Cache.Shards != 32 {
		t.Errorf("Cache.Shards = %d, want default 32", cfg.Cache.Shards)
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" on ", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SCHEMAQL_METRICS_ENABLED", tt.value)
			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv error: %v", err)
			}
			if cfg.Metrics.Enabled != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.value, cfg.Metrics.Enabled, tt.want)
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9999\n")
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Server.Port != 9999 {
			t.Errorf("Port = %d, want 9999", cfg.Server.Port)
		}
	})

	t.Run("missing file uses env", func(t *testing.T) {
		t.Setenv("SCHEMAQL_SERVER_PORT", "8181")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Server.Port != 8181 {
			t.Errorf("Port = %d, want 8181", cfg.Server.Port)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		cfg, err := config.LoadWithFallback("")
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("Port = %d, want 8080", cfg.Server.Port)
		}
	})
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := writeAndLoadErr(t, "server: [unclosed\n")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("error = %v, want parse config", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return config.Load(path)
}
