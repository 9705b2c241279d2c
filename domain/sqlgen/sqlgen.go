// Package sqlgen builds parameterized SELECT statements for relational
// namespaces, coerces bound arguments to declared field types and
// synthesizes placeholder rows for failed executions.
//
// Identifiers are taken verbatim from trusted schemas; argument values are
// always bound as parameters.
package sqlgen

import (
	"strconv"
	"strings"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// Statement returns "SELECT f1, f2 FROM <namespace>" followed, when args
// is non-empty, by "WHERE a = ? AND b = ?" in args.Keys() order.
func Statement(namespace string, fields []string, args query.Arguments) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(namespace)

	for i, k := range args.Keys() {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(k)
		b.WriteString(" = ?")
	}
	return b.String()
}

// Bind returns driver parameters in args.Keys() order. Each argument is
// coerced to the type of the namespace field it names (exact name first,
// then alias); arguments naming no field are bound unchanged.
func Bind(ns *schema.Namespace, args query.Arguments) []any {
	keys := args.Keys()
	params := make([]any, 0, len(keys))
	for _, k := range keys {
		v := args[k]
		if ns != nil {
			if f, ok := ns.FieldByNameOrAlias(k); ok {
				v = Coerce(v, f.FieldType())
			}
		}
		params = append(params, v.Any())
	}
	return params
}

// Coerce converts v to the given field type. Values that cannot be
// converted are returned unchanged; Coerce never fails.
func Coerce(v value.Value, t schema.FieldType) value.Value {
	if v.IsNull() {
		return v
	}

	switch t {
	case schema.TypeInteger:
		return coerceInt(v, 32)
	case schema.TypeLong:
		return coerceInt(v, 64)
	case schema.TypeDouble:
		if f, ok := v.AsFloat(); ok {
			return value.Float(f)
		}
		if i, ok := v.AsInt(); ok {
			return value.Float(float64(i))
		}
		if s, ok := v.AsString(); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return value.Float(f)
			}
		}
	case schema.TypeBoolean:
		if _, ok := v.AsBool(); ok {
			return v
		}
		if s, ok := v.AsString(); ok {
			switch strings.ToLower(s) {
			case "true":
				return value.Bool(true)
			case "false":
				return value.Bool(false)
			}
		}
	case schema.TypeString:
		return value.String(v.String())
	}
	return v
}

func coerceInt(v value.Value, bits int) value.Value {
	if i, ok := v.AsInt(); ok {
		return value.Int(i)
	}
	if f, ok := v.AsFloat(); ok {
		return value.Int(int64(f))
	}
	if s, ok := v.AsString(); ok {
		if i, err := strconv.ParseInt(s, 10, bits); err == nil {
			return value.Int(i)
		}
	}
	return v
}

// Rebind rewrites "?" placeholders to "$1", "$2", ... for drivers that use
// numbered parameters.
func Rebind(statement string) string {
	var b strings.Builder
	n := 0
	for _, r := range statement {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
