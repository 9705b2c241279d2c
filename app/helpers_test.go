package app_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/memory"
	"github.com/artpar/schemaql/app"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// fakeLoader serves schemas from memory.
type fakeLoader struct {
	mu      sync.Mutex
	schemas map[string]*schema.Schema
	loads   int
}

func newFakeLoader(schemas ...*schema.Schema) *fakeLoader {
	l := &fakeLoader{schemas: make(map[string]*schema.Schema)}
	for _, s := range schemas {
		l.schemas[s.Name] = s
	}
	return l
}

func (l *fakeLoader) Load(_ context.Context, name string) (*schema.Schema, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	s, ok := l.schemas[name]
	if !ok {
		return nil, query.Errorf(query.CodeSchemaNotFound, "schema %q not found", name)
	}
	return s, nil
}

func (l *fakeLoader) IsCached(name string) bool {
	_, ok := l.GetCached(name)
	return ok
}

func (l *fakeLoader) GetCached(name string) (*schema.Schema, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.schemas[name]
	return s, ok
}

// fakePlugin returns fixed rows and counts invocations.
type fakePlugin struct {
	kind  string
	rows  []value.Row
	err   error
	calls atomic.Int32

	mu         sync.Mutex
	lastFields []string
	lastArgs   query.Arguments
}

func (p *fakePlugin) Kind() string        { return p.kind }
func (p *fakePlugin) Description() string { return "fake " + p.kind }
func (p *fakePlugin) CanHandle(kind string) bool {
	return strings.EqualFold(kind, p.kind)
}

func (p *fakePlugin) Execute(_ context.Context, _ *schema.Namespace, fields []string, args query.Arguments, _ *schema.Schema) ([]value.Row, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.lastFields = fields
	p.lastArgs = args
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([]value.Row, len(p.rows))
	for i, r := range p.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

// fakeSQL records statements and returns fixed rows.
type fakeSQL struct {
	mu         sync.Mutex
	rows       []value.Row
	statements []string
	connection string
}

func (f *fakeSQL) Execute(_ context.Context, connection, statement string, _ query.Arguments, _ []string, _ *schema.Namespace) []value.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, statement)
	f.connection = connection
	out := make([]value.Row, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Clone()
	}
	return out
}

// fakeAPI records the call and returns fixed rows.
type fakeAPI struct {
	rows []value.Row
	err  error

	url, method, path string
	fields            []string
}

func (f *fakeAPI) Execute(_ context.Context, url, method string, _ query.Arguments, extractionPath string, fields []*schema.Field) ([]value.Row, error) {
	f.url, f.method, f.path = url, method, extractionPath
	f.fields = schema.Names(fields)
	return f.rows, f.err
}

func accountsSchema(ttl int64) *schema.Schema {
	return &schema.Schema{
		Name:   "accounts",
		Source: schema.DataSource{Name: "ledger", Type: "fake"},
		Namespaces: []*schema.Namespace{{
			Name:            "accounts",
			Cacheable:       true,
			CacheTTL:        ttl,
			CacheKeyPattern: "accounts::{id}",
			Fields: []*schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "owner", Type: "string"},
			},
		}},
	}
}

func newQueryService(t *testing.T, loader *fakeLoader, plugins ...*fakePlugin) *app.QueryService {
	t.Helper()
	cache := memory.NewResultCache(memory.CacheConfig{CleanupInterval: -1})
	t.Cleanup(func() { cache.Close() })

	reg := app.NewPluginRegistry()
	for _, p := range plugins {
		reg.Register(p)
	}
	return app.NewQueryService(app.QueryConfig{
		Schemas:     loader,
		Cache:       cache,
		Plugins:     reg,
		Logger:      zerolog.Nop(),
		MaxParallel: 4,
	})
}
