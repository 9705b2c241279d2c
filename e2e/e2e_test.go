// Package e2e runs schemaql end to end: a real listener, a SQLite source
// and an upstream API, queried over HTTP.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/schemaql/adapters/sqldb"
	"github.com/artpar/schemaql/bootstrap"
)

const customerDoc = `
schemaName: customer
source:
  dataSource: crm
  dataSourceType: database
  dbName: crm
namespaces:
  - namespace: customers
    primaryKey: [customer_id]
    fields:
      - {name: customer_id, type: integer, aliases: [id]}
      - {name: first_name, type: string}
      - {name: last_name, type: string}
      - name: full_name
        type: string
        computed: true
        transformer: {type: concat, fields: [first_name, last_name], separator: " "}
`

const profileDoc = `
schemaName: profile
source:
  dataSource: profileapi
  dataSourceType: api
  apiUrl: "{{UPSTREAM}}/api/profile"
  httpMethod: GET
  mandatoryParams: [customer_id]
namespaces:
  - namespace: profile
    resultJsonPath: "$.data.profile"
    fields:
      - {name: customer_id, type: string}
      - {name: name, type: string}
      - {name: loyaltyScore, type: integer, jsonPath: "$.data.metrics.loyaltyScore"}
`

const customer360Doc = `
schemaName: customer360
source:
  dataSource: customer360
  dataSourceType: view
  globalKey: customer_id
  base: {schema: customer, namespace: customers, key: customer_id}
  joins:
    - {schema: profile, namespace: profile, key: customer_id, type: left}
  viewFields:
    - {from: customers.customer_id, as: customer_id}
    - {from: customers.full_name, as: name}
    - {from: profile.loyaltyScore, as: loyalty}
namespaces:
  - namespace: customer360
    cacheable: true
    cacheTTL: 60
    cacheKeyPattern: "customer360::{customer_id}"
    fields:
      - {name: customer_id, type: integer}
      - {name: name, type: string}
      - {name: loyalty, type: integer}
`

type batchResponse struct {
	Results []struct {
		Schema     string            `json:"schema"`
		Namespace  string            `json:"namespace"`
		DataSource string            `json:"dataSource"`
		Data       []map[string]any  `json:"data"`
		DataTypes  map[string]string `json:"dataTypes"`
	} `json:"results"`
}

// TestE2E_ViewQuery covers the full federation flow:
// 1. Start a mock profile API
// 2. Start schemaql with a SQLite customer store
// 3. Query the customer360 view twice
// 4. Verify the joined row and that the second answer came from cache
func TestE2E_ViewQuery(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"profile":{"customer_id":"`+r.URL.Query().Get("customer_id")+
			`","name":"Ada"},"metrics":{"loyaltyScore":42}}}`)
	}))
	defer upstream.Close()

	app := setupTestApp(t, upstream.URL)
	addr := startServer(t, app)

	body := `{"queries":[{"schema":"customer360","arguments":{"customer_id":1},"fields":["customer_id","name","loyalty"]}],"includeDataTypes":true}`

	for i := 0; i < 2; i++ {
		got := postQuery(t, addr, body, http.StatusOK)
		if len(got.Results) != 1 || len(got.Results[0].Data) != 1 {
			t.Fatalf("unexpected results: %+v", got)
		}
		row := got.Results[0].Data[0]
		if row["name"] != "Ada Lovelace" {
			t.Errorf("name = %v, want Ada Lovelace", row["name"])
		}
		if row["loyalty"] != float64(42) {
			t.Errorf("loyalty = %v, want 42", row["loyalty"])
		}
		if got.Results[0].DataTypes["loyalty"] != "integer" {
			t.Errorf("dataTypes = %v", got.Results[0].DataTypes)
		}
	}

	if n := upstreamCalls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (second query cached)", n)
	}
}

func TestE2E_DatabaseAndAPIInOneBatch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"profile":{"customer_id":"2","name":"Alan"},"metrics":{"loyaltyScore":7}}}`)
	}))
	defer upstream.Close()

	app := setupTestApp(t, upstream.URL)
	addr := startServer(t, app)

	body := `{"queries":[
		{"schema":"customer","namespace":"customers","arguments":{"customer_id":2},"fields":["customer_id","full_name"]},
		{"schema":"profile","namespace":"profile","arguments":{"customer_id":"2"},"fields":["name","loyaltyScore"]}
	]}`
	got := postQuery(t, addr, body, http.StatusOK)

	if len(got.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(got.Results))
	}
	if got.Results[0].DataSource != "crm" || got.Results[0].Data[0]["full_name"] != "Alan Turing" {
		t.Errorf("database result = %+v", got.Results[0])
	}
	if got.Results[1].DataSource != "profileapi" || got.Results[1].Data[0]["loyaltyScore"] != float64(7) {
		t.Errorf("api result = %+v", got.Results[1])
	}
}

func TestE2E_Errors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	app := setupTestApp(t, upstream.URL)
	addr := startServer(t, app)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown schema", `{"queries":[{"schema":"nope","fields":["a"]}]}`, http.StatusNotFound},
		{"missing mandatory param", `{"queries":[{"schema":"profile","namespace":"profile","fields":["name"]}]}`, http.StatusBadRequest},
		{"upstream failure", `{"queries":[{"schema":"profile","namespace":"profile","arguments":{"customer_id":"1"},"fields":["name"]}]}`, http.StatusBadGateway},
		{"malformed body", `{"queries":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			postQuery(t, addr, tt.body, tt.want)
		})
	}
}

func TestE2E_HealthEndpoints(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	app := setupTestApp(t, upstream.URL)
	addr := startServer(t, app)

	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/health", "/health/live", "/health/ready", "/version"} {
		resp, err := client.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func postQuery(t *testing.T, addr, body string, want int) batchResponse {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post("http://"+addr+"/api/query", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d, body: %s", resp.StatusCode, want, raw)
	}

	var out batchResponse
	if want == http.StatusOK {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return out
}

// setupTestApp writes schema documents, a seeded CRM database and a config
// into a temp dir and bootstraps an App from them.
func setupTestApp(t *testing.T, upstreamURL string) *bootstrap.App {
	t.Helper()
	dir := t.TempDir()

	schemas := filepath.Join(dir, "schemas")
	if err := os.MkdirAll(schemas, 0o755); err != nil {
		t.Fatal(err)
	}
	docs := map[string]string{
		"customer.yaml":    customerDoc,
		"profile.yaml":     string(bytes.ReplaceAll([]byte(profileDoc), []byte("{{UPSTREAM}}"), []byte(upstreamURL))),
		"customer360.yaml": customer360Doc,
	}
	for name, doc := range docs {
		if err := os.WriteFile(filepath.Join(schemas, name), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dbPath := filepath.Join(dir, "crm.db")
	db, err := sqldb.Open("sqlite", dbPath, 0)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	for _, s := range []string{
		`CREATE TABLE customers (customer_id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT)`,
		`INSERT INTO customers VALUES (1, 'Ada', 'Lovelace')`,
		`INSERT INTO customers VALUES (2, 'Alan', 'Turing')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	db.Close()

	cfgPath := filepath.Join(dir, "schemaql.yaml")
	cfg := `
schemas:
  directory: "` + schemas + `"
  bundled: false
connections:
  - name: crm
    driver: sqlite
    dsn: "` + dbPath + `"
logging:
  level: error
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: cfgPath, Version: "e2e", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { app.Shutdown() })
	return app
}

func startServer(t *testing.T, app *bootstrap.App) string {
	t.Helper()

	// Find free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	app.HTTPServer.Addr = addr
	listener.Close()

	go func() {
		if err := app.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server: %v", err)
		}
	}()

	waitForServer(t, addr)
	return addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	client := &http.Client{Timeout: 100 * time.Millisecond}

	for i := 0; i < 50; i++ {
		resp, err := client.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become ready", addr)
}
