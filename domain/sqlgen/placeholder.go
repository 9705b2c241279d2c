package sqlgen

import (
	"strings"

	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// PlaceholderRow synthesizes the single row returned when a relational
// execution fails. Values depend on the declared field type and on the
// field name; fields absent from the namespace get "mock_<field>".
func PlaceholderRow(ns *schema.Namespace, fields []string) value.Row {
	row := make(value.Row, len(fields))
	for _, name := range fields {
		if ns == nil {
			row[name] = mockString(name)
			continue
		}
		f, ok := ns.Field(name)
		if !ok {
			row[name] = mockString(name)
			continue
		}
		row[name] = placeholder(name, f.Type)
	}
	return row
}

func placeholder(name, declared string) value.Value {
	lower := strings.ToLower(name)

	switch strings.ToLower(declared) {
	case "string", "text":
		switch {
		case strings.Contains(lower, "email"):
			return value.String("user@example.com")
		case strings.Contains(lower, "name"):
			return value.String("John Doe")
		case strings.Contains(lower, "phone"):
			return value.String("555-123-4567")
		default:
			return value.String("Sample " + name)
		}
	case "integer", "int":
		return value.Int(123)
	case "decimal", "double", "float":
		if strings.Contains(lower, "balance") {
			return value.Float(1234.56)
		}
		return value.Float(123.45)
	case "boolean", "bool":
		return value.Bool(true)
	case "date":
		return value.String("2023-05-01")
	case "timestamp", "datetime":
		return value.String("2023-05-01T10:30:00")
	default:
		return mockString(name)
	}
}

func mockString(name string) value.Value {
	return value.String("mock_" + name)
}
