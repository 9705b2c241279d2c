package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/ports"
)

// SchemaMerger builds a schema from the namespaces of several others.
type SchemaMerger struct {
	schemas ports.SchemaLoader
	logger  zerolog.Logger
}

// NewSchemaMerger creates a schema merger.
func NewSchemaMerger(schemas ports.SchemaLoader, logger zerolog.Logger) *SchemaMerger {
	return &SchemaMerger{
		schemas: schemas,
		logger:  logger.With().Str("service", "merge").Logger(),
	}
}

// Merge loads every component fresh, in order, and combines their
// namespaces under outputName. renames maps a component namespace name to
// its output name. The first namespace to claim an output name supplies its
// metadata; later ones only contribute fields with names not yet present.
// Fields are shared with the components, not copied. The output takes its
// source from the first component.
func (m *SchemaMerger) Merge(ctx context.Context, outputName string, components []string, renames map[string]string) (*schema.Schema, error) {
	if outputName == "" {
		return nil, query.Errorf(query.CodeInvalidRequest, "merge output name is required")
	}
	if len(components) == 0 {
		return nil, query.Errorf(query.CodeInvalidRequest, "merge needs at least one component")
	}

	out := &schema.Schema{Name: outputName}
	byName := make(map[string]*schema.Namespace)

	for i, name := range components {
		comp, err := m.schemas.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out.Source = comp.Source
		}

		m.logger.Info().
			Str("component", comp.Name).
			Str("output", outputName).
			Msg("merging schema")

		for _, ns := range comp.Namespaces {
			outName := ns.Name
			if r, ok := renames[ns.Name]; ok && r != "" {
				outName = r
			}

			target, ok := byName[outName]
			if !ok {
				cp := *ns
				cp.Name = outName
				cp.Fields = append([]*schema.Field(nil), ns.Fields...)
				out.Namespaces = append(out.Namespaces, &cp)
				byName[outName] = &cp
				continue
			}

			for _, f := range ns.Fields {
				if _, exists := target.Field(f.Name); !exists {
					target.Fields = append(target.Fields, f)
				}
			}
		}
	}

	if err := schema.Validate(out); err != nil {
		return nil, query.Wrap(query.CodeInvalidSchema, err, "merged schema %s", outputName)
	}
	return out, nil
}
