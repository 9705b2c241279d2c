package app

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/sqlgen"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/domain/view"
	"github.com/artpar/schemaql/ports"
)

// ViewComposer answers view schemas: it queries the relational base by the
// view's global key, fetches every join through its plugin and merges the
// rows under the view's output aliases.
type ViewComposer struct {
	schemas ports.SchemaLoader
	sql     ports.SQLExecutor
	plugins *PluginRegistry
	deriver view.Deriver
	logger  zerolog.Logger
}

// NewViewComposer creates a view composer.
func NewViewComposer(schemas ports.SchemaLoader, sql ports.SQLExecutor, plugins *PluginRegistry, deriver view.Deriver, logger zerolog.Logger) *ViewComposer {
	return &ViewComposer{
		schemas: schemas,
		sql:     sql,
		plugins: plugins,
		deriver: deriver,
		logger:  logger.With().Str("service", "view").Logger(),
	}
}

// Compose produces one row per base row for the view schema v.
func (c *ViewComposer) Compose(ctx context.Context, v *schema.Schema, args query.Arguments) ([]value.Row, error) {
	ds := v.Source
	if ds.Base == nil {
		return nil, query.Errorf(query.CodeInvalidView, "view %s has no base", v.Name)
	}

	if _, ok := args[ds.GlobalKey]; !ok {
		return nil, query.Errorf(query.CodeInvalidRequest, "view %s requires argument %s", v.Name, ds.GlobalKey)
	}

	baseRows, err := c.base(ctx, v, args.Only(ds.GlobalKey))
	if err != nil {
		return nil, err
	}

	lookups := make([]view.Lookup, len(ds.Joins))
	var g errgroup.Group
	for i, j := range ds.Joins {
		g.Go(func() error {
			rows, err := c.join(ctx, v, j, args)
			if err != nil {
				return err
			}
			lookups[i] = view.BuildLookup(rows, j.Key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := view.Merge(ds, baseRows, lookups)
	c.logger.Debug().
		Str("view", v.Name).
		Int("base_rows", len(baseRows)).
		Int("joins", len(ds.Joins)).
		Msg("view composed")
	return out, nil
}

// base queries the base namespace and derives its computed view fields.
func (c *ViewComposer) base(ctx context.Context, v *schema.Schema, baseArgs query.Arguments) ([]value.Row, error) {
	ds := v.Source

	baseSchema, err := loadSchema(ctx, c.schemas, ds.Base.Schema)
	if err != nil {
		return nil, err
	}
	baseNs, ok := baseSchema.Namespace(ds.Base.Namespace)
	if !ok {
		return nil, query.Errorf(query.CodeNamespaceNotFound, "namespace %s not found in %s", ds.Base.Namespace, baseSchema.Name)
	}

	fields, err := view.BaseFields(ds, baseNs)
	if err != nil {
		return nil, query.Wrap(query.CodeInvalidView, err, "view %s", v.Name)
	}

	statement := sqlgen.Statement(baseNs.Name, fields, baseArgs)
	rows := c.sql.Execute(ctx, baseSchema.Source.Connection(), statement, baseArgs, fields, baseNs)

	if err := view.Derive(rows, view.DerivedBaseFields(ds, baseNs), c.deriver); err != nil {
		return nil, query.Wrap(query.CodeInvalidView, err, "view %s", v.Name)
	}
	return rows, nil
}

// join fetches the mapped fields of one joined namespace with the
// request's arguments, bypassing the result cache.
func (c *ViewComposer) join(ctx context.Context, v *schema.Schema, j schema.JoinRef, args query.Arguments) ([]value.Row, error) {
	joinSchema, err := loadSchema(ctx, c.schemas, j.Schema)
	if err != nil {
		return nil, err
	}
	joinNs, ok := joinSchema.Namespace(j.Namespace)
	if !ok {
		return nil, query.Errorf(query.CodeNamespaceNotFound, "namespace %s not found in %s", j.Namespace, joinSchema.Name)
	}

	plugin, err := c.plugins.Resolve(joinSchema.Source.Type)
	if err != nil {
		return nil, err
	}

	fields := view.FieldsOf(v.Source, j.Namespace)
	// BuildLookup indexes join rows by j.Key, so the key column is fetched
	// even when no viewField maps it.
	if j.Key != "" && !slices.Contains(fields, j.Key) {
		fields = append(fields, j.Key)
	}

	c.logger.Debug().
		Str("view", v.Name).
		Str("join", j.Schema+"."+j.Namespace).
		Str("plugin", plugin.Kind()).
		Msg("fetching join")

	return plugin.Execute(ctx, joinNs, fields, args, joinSchema)
}
