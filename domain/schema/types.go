package schema

import "strings"

// FieldType is a normalized field type.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeLong      FieldType = "long"
	TypeDouble    FieldType = "double"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
	TypeUnknown   FieldType = ""
)

// NormalizeType maps a declared type name, case-insensitively, onto a
// FieldType. Synonyms: text=string, int=integer, decimal/float=double,
// bool=boolean, datetime=timestamp.
func NormalizeType(s string) FieldType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return TypeString
	case "integer", "int":
		return TypeInteger
	case "long":
		return TypeLong
	case "double", "decimal", "float":
		return TypeDouble
	case "boolean", "bool":
		return TypeBoolean
	case "date":
		return TypeDate
	case "timestamp", "datetime":
		return TypeTimestamp
	default:
		return TypeUnknown
	}
}
