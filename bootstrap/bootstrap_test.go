package bootstrap_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/schemaql/adapters/sqldb"
	"github.com/artpar/schemaql/bootstrap"
)

const ledgerSchema = `
schemaName: accounts
source:
  dataSource: ledger
  dataSourceType: database
  dbName: ledger
namespaces:
  - namespace: accounts
    primaryKey: [id]
    cacheable: true
    cacheTTL: 60
    cacheKeyPattern: "accounts::{id}"
    fields:
      - name: id
        type: integer
      - name: owner
        type: string
`

// setupWorkspace writes a config file, a schema directory and a seeded
// SQLite database into a temp dir and returns the config path.
func setupWorkspace(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	schemas := filepath.Join(dir, "schemas")
	if err := os.MkdirAll(schemas, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(schemas, "accounts.yaml"), []byte(ledgerSchema), 0o644); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
	db, err := sqldb.Open("sqlite", dbPath, 0)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	for _, s := range []string{
		`CREATE TABLE accounts (id INTEGER, owner TEXT)`,
		`INSERT INTO accounts VALUES (1, 'ada')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	db.Close()

	cfg := `
server:
  port: 0
schemas:
  directory: "` + schemas + `"
connections:
  - name: ledger
    driver: sqlite
    dsn: "` + dbPath + `"
metrics:
  enabled: true
logging:
  level: error
` + extra

	path := filepath.Join(dir, "schemaql.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newApp(t *testing.T, path string) *bootstrap.App {
	t.Helper()
	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path, Version: "test", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func TestBootstrap_Integration(t *testing.T) {
	a := newApp(t, setupWorkspace(t, ""))

	if a.HTTPServer == nil || a.Router == nil {
		t.Fatal("HTTP server should be initialized")
	}
	if a.Metrics == nil {
		t.Error("Metrics should be enabled")
	}
	if got := len(a.Plugins.List()); got != 2 {
		t.Errorf("plugins = %d, want 2", got)
	}

	body := `{"queries":[{"schema":"accounts","namespace":"accounts","arguments":{"id":1},"fields":["id","owner"]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			Schema string           `json:"schema"`
			Data   []map[string]any `json:"data"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Results[0].Data) != 1 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if owner := resp.Results[0].Data[0]["owner"]; owner != "ada" {
		t.Errorf("owner = %v, want ada", owner)
	}

	if keys := a.Cache.AllKeys(); len(keys) != 1 || keys[0] != "accounts::1" {
		t.Errorf("cache keys = %v, want [accounts::1]", keys)
	}
}

func TestBootstrap_BundledSchemas(t *testing.T) {
	a := newApp(t, setupWorkspace(t, ""))

	names, err := a.Schemas.Names()
	if err != nil {
		t.Fatalf("Names error: %v", err)
	}
	want := map[string]bool{"accounts": false, "customer": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("schema %q not listed in %v", n, names)
		}
	}
}

func TestBootstrap_ReadinessAndMetrics(t *testing.T) {
	a := newApp(t, setupWorkspace(t, ""))

	for _, path := range []string{"/health/ready", "/metrics", "/version"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestBootstrap_AdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := newApp(t, setupWorkspace(t, "admin:\n  token_hash: '"+string(hash)+"'\n"))

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/cache/keys", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/cache/keys", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", rec.Code)
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestBootstrap_GracefulShutdown(t *testing.T) {
	a, err := bootstrap.New(bootstrap.Options{ConfigPath: setupWorkspace(t, ""), LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	if err := a.Shutdown(); err != nil {
		t.Errorf("shutdown error: %v", err)
	}

	if err := a.Connections.Default().Ping(); err == nil {
		t.Error("expected error pinging closed database")
	}
}
