package sqldb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultName is the connection name used when a schema declares none.
const DefaultName = "default"

// ConnectionSpec describes one named connection.
type ConnectionSpec struct {
	Name         string
	Aliases      []string
	Driver       string
	DSN          string
	MaxOpenConns int
	Default      bool
}

// Registry resolves logical connection names, case-insensitively, to
// connection pools. It is read-only after construction.
type Registry struct {
	conns map[string]*DB
	def   *DB
	pools []*DB
}

// NewRegistry builds a registry from already opened pools. def may be nil.
func NewRegistry(def *DB, named map[string]*DB) *Registry {
	r := &Registry{conns: make(map[string]*DB, len(named)+1), def: def}
	for name, db := range named {
		r.conns[strings.ToLower(name)] = db
	}
	if def != nil {
		r.conns[DefaultName] = def
	}
	return r
}

// OpenRegistry opens every connection in specs. The connection flagged
// Default, or the first one when none is flagged, also answers to
// "default".
func OpenRegistry(specs []ConnectionSpec) (*Registry, error) {
	named := make(map[string]*DB)
	var def *DB
	var pools []*DB

	for i, spec := range specs {
		db, err := Open(spec.Driver, spec.DSN, spec.MaxOpenConns)
		if err != nil {
			for _, p := range pools {
				p.Close()
			}
			return nil, fmt.Errorf("connection %q: %w", spec.Name, err)
		}
		pools = append(pools, db)

		named[spec.Name] = db
		for _, a := range spec.Aliases {
			named[a] = db
		}
		if spec.Default || (def == nil && i == 0) {
			def = db
		}
	}

	r := NewRegistry(def, named)
	r.pools = pools
	return r, nil
}

// Lookup returns the pool registered under name, ignoring case.
func (r *Registry) Lookup(name string) (*DB, bool) {
	db, ok := r.conns[strings.ToLower(name)]
	return db, ok
}

// Default returns the default pool, or nil.
func (r *Registry) Default() *DB {
	return r.def
}

// Names lists registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.conns))
	for n := range r.conns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HealthCheck pings the default pool.
func (r *Registry) HealthCheck(ctx context.Context) error {
	if r.def == nil {
		return errors.New("no default connection")
	}
	return r.def.PingContext(ctx)
}

// Close closes the pools this registry opened.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
