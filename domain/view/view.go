// Package view holds the pure algorithms behind composed views: planning
// base fields, deriving computed fields, building join lookups and merging
// joined rows under their output aliases.
package view

import (
	"fmt"
	"strings"

	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// Deriver computes the value of a derived field from a row.
type Deriver interface {
	Derive(f *schema.Field, row value.Row) (value.Value, error)
}

// BaseFields returns the base-namespace columns a view needs: every
// viewField of the base namespace, with derived fields replaced by their
// components, prefixed by the base key when not already present.
func BaseFields(ds schema.DataSource, baseNs *schema.Namespace) ([]string, error) {
	if ds.Base == nil {
		return nil, fmt.Errorf("view has no base")
	}

	var fields []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}

	for _, name := range FieldsOf(ds, ds.Base.Namespace) {
		f, ok := baseNs.Field(name)
		if !ok {
			return nil, fmt.Errorf("base field %s.%s not declared", ds.Base.Namespace, name)
		}
		if f.Derived() {
			for _, c := range f.Transformer.Fields {
				add(c)
			}
			continue
		}
		add(name)
	}

	// Merge reads the join key from the globalKey column.
	key := ds.GlobalKey
	if key != "" && !seen[key] {
		fields = append([]string{key}, fields...)
	}
	return fields, nil
}

// FieldsOf returns the field parts of the viewFields sourced from namespace,
// in declaration order.
func FieldsOf(ds schema.DataSource, namespace string) []string {
	var out []string
	for _, vf := range ds.ViewFields {
		ns, field, ok := vf.Split()
		if ok && ns == namespace {
			out = append(out, field)
		}
	}
	return out
}

// DerivedBaseFields returns the derived fields of the base namespace that
// the view exposes.
func DerivedBaseFields(ds schema.DataSource, baseNs *schema.Namespace) []*schema.Field {
	var out []*schema.Field
	for _, name := range FieldsOf(ds, ds.Base.Namespace) {
		if f, ok := baseNs.Field(name); ok && f.Derived() {
			out = append(out, f)
		}
	}
	return out
}

// Derive sets every derived field on every row. The first derivation
// error aborts.
func Derive(rows []value.Row, fields []*schema.Field, d Deriver) error {
	for _, row := range rows {
		for _, f := range fields {
			v, err := d.Derive(f, row)
			if err != nil {
				return fmt.Errorf("derive %s: %w", f.Name, err)
			}
			row[f.Name] = v
		}
	}
	return nil
}

// Concat joins the string forms of the transformer's component values with
// its separator. Missing components render as "null".
func Concat(t *schema.Transformer, row value.Row) value.Value {
	parts := make([]string, len(t.Fields))
	for i, c := range t.Fields {
		parts[i] = row.Get(c).String()
	}
	return value.String(strings.Join(parts, t.Separator))
}

// ConcatDeriver derives fields with concat transformers only.
type ConcatDeriver struct{}

func (ConcatDeriver) Derive(f *schema.Field, row value.Row) (value.Value, error) {
	if f.Transformer == nil || f.Transformer.Kind() != schema.TransformConcat {
		return value.Null(), fmt.Errorf("field %s: unsupported transformer", f.Name)
	}
	return Concat(f.Transformer, row), nil
}

// Lookup maps the string form of a join key to its first row.
type Lookup map[string]value.Row

// BuildLookup indexes rows by the string form of key. On duplicate keys the
// first row wins.
func BuildLookup(rows []value.Row, key string) Lookup {
	l := make(Lookup, len(rows))
	for _, r := range rows {
		k := r.Get(key).String()
		if _, ok := l[k]; !ok {
			l[k] = r
		}
	}
	return l
}

// Merge produces one output row per base row, in base order. Base
// viewFields copy the base value; join viewFields look up the join row by
// the base row's globalKey value and copy the mapped field, or null on a
// miss. lookups is indexed like ds.Joins.
func Merge(ds schema.DataSource, baseRows []value.Row, lookups []Lookup) []value.Row {
	out := make([]value.Row, 0, len(baseRows))
	for _, base := range baseRows {
		merged := make(value.Row, len(ds.ViewFields))
		joinKey := base.Get(ds.GlobalKey).String()

		for _, vf := range ds.ViewFields {
			ns, field, ok := vf.Split()
			if !ok {
				continue
			}
			if ds.Base != nil && ns == ds.Base.Namespace {
				merged[vf.As] = base.Get(field)
				continue
			}
			for i, j := range ds.Joins {
				if j.Namespace != ns || i >= len(lookups) {
					continue
				}
				merged[vf.As] = lookups[i][joinKey].Get(field)
			}
		}
		out = append(out, merged)
	}
	return out
}
