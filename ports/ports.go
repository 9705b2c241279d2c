// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// -----------------------------------------------------------------------------
// Schema Ports
// -----------------------------------------------------------------------------

// SchemaLoader loads schemas by name.
type SchemaLoader interface {
	// Load reads the named schema from its backing documents and caches it,
	// replacing any cached instance.
	Load(ctx context.Context, name string) (*schema.Schema, error)

	// IsCached reports whether the schema is already loaded.
	IsCached(name string) bool

	// GetCached returns the loaded schema without touching documents.
	GetCached(name string) (*schema.Schema, bool)
}

// SchemaStore is the full schema store used by the debug surface.
type SchemaStore interface {
	SchemaLoader

	// Exists reports whether a schema is cached or has a backing document.
	Exists(name string) bool

	// Names lists document and cached schema names, sorted.
	Names() ([]string, error)

	// Register caches a schema built in memory, such as a merge result.
	Register(s *schema.Schema)

	// Clear drops every cached schema.
	Clear()
}

// -----------------------------------------------------------------------------
// Cache Port
// -----------------------------------------------------------------------------

// ResultCache stores sub-query results by key with a per-entry TTL.
// Operations never fail.
type ResultCache interface {
	Get(key string) ([]value.Row, bool)

	// Put stores rows for ttl; a ttl <= 0 stores nothing.
	Put(key string, rows []value.Row, ttl time.Duration)

	Evict(key string)
	Clear()

	// AllKeys lists every stored key, including expired entries not yet
	// read.
	AllKeys() []string

	// AllEntries returns the live (unexpired) entries.
	AllEntries() map[string][]value.Row
}

// -----------------------------------------------------------------------------
// Execution Ports
// -----------------------------------------------------------------------------

// SourcePlugin executes namespace queries for one family of source kinds.
type SourcePlugin interface {
	Kind() string
	Description() string

	// CanHandle reports, case-insensitively, whether the plugin serves
	// the given source kind.
	CanHandle(kind string) bool

	Execute(ctx context.Context, ns *schema.Namespace, fields []string, args query.Arguments, s *schema.Schema) ([]value.Row, error)
}

// SQLExecutor runs generated statements against named connections.
// Execution failures are masked by a single placeholder row.
type SQLExecutor interface {
	Execute(ctx context.Context, connection, statement string, args query.Arguments, fields []string, ns *schema.Namespace) []value.Row
}

// APIExecutor calls a REST endpoint and extracts rows from its JSON body.
type APIExecutor interface {
	Execute(ctx context.Context, url, method string, args query.Arguments, extractionPath string, fields []*schema.Field) ([]value.Row, error)
}

// -----------------------------------------------------------------------------
// Auth Port
// -----------------------------------------------------------------------------

// TokenHasher hashes and verifies admin tokens.
type TokenHasher interface {
	Hash(token string) ([]byte, error)
	Compare(hash []byte, token string) bool
}

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
