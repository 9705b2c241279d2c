package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/sqlgen"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/domain/view"
	"github.com/artpar/schemaql/ports"
)

// PluginInfo describes a registered plugin.
type PluginInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// PluginRegistry resolves source kinds to plugins in registration order.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins []ports.SourcePlugin
}

// NewPluginRegistry creates a registry holding plugins in order.
func NewPluginRegistry(plugins ...ports.SourcePlugin) *PluginRegistry {
	return &PluginRegistry{plugins: plugins}
}

// Register appends a plugin. Earlier registrations win on overlap.
func (r *PluginRegistry) Register(p ports.SourcePlugin) {
	r.mu.Lock()
	r.plugins = append(r.plugins, p)
	r.mu.Unlock()
}

// Resolve returns the first plugin that handles kind.
func (r *PluginRegistry) Resolve(kind string) (ports.SourcePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.CanHandle(kind) {
			return p, nil
		}
	}
	return nil, query.Errorf(query.CodeNoPlugin, "no plugin for source kind %s", kind)
}

// List describes the registered plugins in order.
func (r *PluginRegistry) List() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PluginInfo, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = PluginInfo{Type: p.Kind(), Description: p.Description()}
	}
	return out
}

// -----------------------------------------------------------------------------
// Database plugin
// -----------------------------------------------------------------------------

// DatabasePlugin answers database sources through generated SQL.
type DatabasePlugin struct {
	sql     ports.SQLExecutor
	deriver view.Deriver
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewDatabasePlugin creates the relational plugin.
func NewDatabasePlugin(sql ports.SQLExecutor, deriver view.Deriver, logger zerolog.Logger, m *metrics.Collector) *DatabasePlugin {
	return &DatabasePlugin{
		sql:     sql,
		deriver: deriver,
		logger:  logger.With().Str("service", "plugin.database").Logger(),
		metrics: m,
	}
}

func (p *DatabasePlugin) Kind() string        { return "jdbc" }
func (p *DatabasePlugin) Description() string { return "Executes SQL queries against named database connections" }

func (p *DatabasePlugin) CanHandle(kind string) bool {
	return strings.EqualFold(kind, "database") || strings.EqualFold(kind, "jdbc")
}

// Execute selects the requested fields by name or alias, fetches their
// backing columns and derives computed fields locally.
func (p *DatabasePlugin) Execute(ctx context.Context, ns *schema.Namespace, fields []string, args query.Arguments, s *schema.Schema) ([]value.Row, error) {
	defer p.observe(time.Now())

	fetch, derived := schema.FetchPlan(ns.Select(fields))
	statement := sqlgen.Statement(ns.Name, fetch, args)

	p.logger.Info().
		Str("schema", s.Name).
		Str("namespace", ns.Name).
		Str("statement", statement).
		Msg("executing statement")

	rows := p.sql.Execute(ctx, s.Source.Connection(), statement, args, fetch, ns)
	if err := view.Derive(rows, derived, p.deriver); err != nil {
		return nil, query.Wrap(query.CodeInvalidSchema, err, "namespace %s", ns.Name)
	}
	return rows, nil
}

func (p *DatabasePlugin) observe(start time.Time) {
	if p.metrics != nil {
		p.metrics.PluginDuration.WithLabelValues(p.Kind()).Observe(time.Since(start).Seconds())
	}
}

// -----------------------------------------------------------------------------
// API plugin
// -----------------------------------------------------------------------------

// APIPlugin answers api sources through a REST call.
type APIPlugin struct {
	api     ports.APIExecutor
	deriver view.Deriver
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewAPIPlugin creates the REST plugin.
func NewAPIPlugin(api ports.APIExecutor, deriver view.Deriver, logger zerolog.Logger, m *metrics.Collector) *APIPlugin {
	return &APIPlugin{
		api:     api,
		deriver: deriver,
		logger:  logger.With().Str("service", "plugin.api").Logger(),
		metrics: m,
	}
}

func (p *APIPlugin) Kind() string        { return "api" }
func (p *APIPlugin) Description() string { return "Executes REST API calls and extracts rows from JSON" }

func (p *APIPlugin) CanHandle(kind string) bool {
	return strings.EqualFold(kind, "api")
}

// Execute calls the source URL with args as query parameters and extracts
// the requested fields from the namespace's result path.
func (p *APIPlugin) Execute(ctx context.Context, ns *schema.Namespace, fields []string, args query.Arguments, s *schema.Schema) ([]value.Row, error) {
	defer p.observe(time.Now())

	fetch, derived := schema.FetchPlan(ns.Select(fields))
	configs := make([]*schema.Field, 0, len(fetch))
	for _, name := range fetch {
		if f, ok := ns.Field(name); ok {
			configs = append(configs, f)
		}
	}

	p.logger.Info().
		Str("schema", s.Name).
		Str("namespace", ns.Name).
		Strs("fields", fetch).
		Msg("calling api")

	rows, err := p.api.Execute(ctx, s.Source.APIURL, s.Source.HTTPMethod, args, ns.ResultJSONPath, configs)
	if err != nil {
		return nil, err
	}
	if err := view.Derive(rows, derived, p.deriver); err != nil {
		return nil, query.Wrap(query.CodeInvalidSchema, err, "namespace %s", ns.Name)
	}
	return rows, nil
}

func (p *APIPlugin) observe(start time.Time) {
	if p.metrics != nil {
		p.metrics.PluginDuration.WithLabelValues(p.Kind()).Observe(time.Since(start).Seconds())
	}
}

// Ensure interface compliance.
var (
	_ ports.SourcePlugin = (*DatabasePlugin)(nil)
	_ ports.SourcePlugin = (*APIPlugin)(nil)
)
