package sqldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/sqlgen"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/ports"
)

var errNoConnection = errors.New("no connection available")

// Executor runs generated statements. Any execution failure is logged and
// answered with a single placeholder row instead of an error.
type Executor struct {
	conns   *Registry
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewExecutor creates an executor over a connection registry.
func NewExecutor(conns *Registry, logger zerolog.Logger, m *metrics.Collector) *Executor {
	return &Executor{
		conns:   conns,
		logger:  logger.With().Str("service", "sql").Logger(),
		metrics: m,
	}
}

// Execute runs statement on the named connection, falling back to the
// default connection when the name is unknown.
func (e *Executor) Execute(ctx context.Context, connection, statement string, args query.Arguments, fields []string, ns *schema.Namespace) []value.Row {
	db, ok := e.conns.Lookup(connection)
	if !ok {
		e.logger.Warn().
			Str("connection", connection).
			Msg("unknown connection, using default")
		db = e.conns.Default()
	}

	rows, err := e.query(ctx, db, statement, sqlgen.Bind(ns, args), fields)
	if err != nil {
		e.logger.Error().
			Err(err).
			Str("connection", connection).
			Str("statement", statement).
			Msg("query failed, returning placeholder row")
		if e.metrics != nil {
			e.metrics.SQLFallbacks.WithLabelValues(connection).Inc()
		}
		return []value.Row{sqlgen.PlaceholderRow(ns, fields)}
	}

	e.logger.Debug().
		Str("connection", connection).
		Str("statement", statement).
		Int("rows", len(rows)).
		Msg("query executed")
	return rows
}

// query scans every result row. When the statement yields one column per
// requested field, rows are keyed by the field names rather than the
// driver's labels, which Postgres folds to lower case.
func (e *Executor) query(ctx context.Context, db *DB, statement string, params []any, fields []string) ([]value.Row, error) {
	if db == nil {
		return nil, errNoConnection
	}
	if db.NumberedParams() {
		statement = sqlgen.Rebind(statement)
	}

	rs, err := db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if len(cols) == len(fields) {
		cols = fields
	}

	var out []value.Row
	for rs.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(value.Row, len(cols))
		for i, c := range cols {
			row[c] = value.FromAny(dest[i])
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if out == nil {
		out = []value.Row{}
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.SQLExecutor = (*Executor)(nil)
