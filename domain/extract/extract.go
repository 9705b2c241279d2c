// Package extract turns JSON response bodies into rows using JSON path
// expressions.
package extract

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// PathError records a field path that failed to evaluate. Path errors do
// not abort extraction.
type PathError struct {
	Field string
	Path  string
	Err   error
}

func (e PathError) Error() string {
	return fmt.Sprintf("field %s: path %s: %v", e.Field, e.Path, e.Err)
}

// Normalize prefixes a path with "$." unless it is already rooted.
func Normalize(path string) string {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "$") || strings.HasPrefix(p, "@") {
		return p
	}
	return "$." + p
}

// Eval evaluates path against a decoded document.
func Eval(path string, doc any) (any, error) {
	return jsonpath.Get(Normalize(path), doc)
}

// Objects selects the records of a response: the whole document when
// extractionPath is empty, otherwise the subtree at extractionPath. An
// array yields one record per element; anything else a single record.
func Objects(doc any, extractionPath string) ([]any, error) {
	node := doc
	if extractionPath != "" {
		v, err := Eval(extractionPath, doc)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", extractionPath, err)
		}
		node = v
	}

	if arr, ok := node.([]any); ok {
		return arr, nil
	}
	return []any{node}, nil
}

// Rows decodes body and builds one row per record. For every field the
// value is resolved from, in order: the field's own JSON path on the whole
// body, extractionPath + "." + name on the whole body, and the field name
// on the record itself. Unresolved fields are null.
func Rows(body []byte, extractionPath string, fields []*schema.Field) ([]value.Row, []PathError, error) {
	doc, err := value.Decode(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse response body: %w", err)
	}

	records, err := Objects(doc, extractionPath)
	if err != nil {
		return nil, nil, err
	}

	var pathErrs []PathError
	rows := make([]value.Row, 0, len(records))
	for _, rec := range records {
		row := make(value.Row, len(fields))
		for _, f := range fields {
			v, errs := resolve(doc, rec, extractionPath, f)
			pathErrs = append(pathErrs, errs...)
			row[f.Name] = v
		}
		rows = append(rows, row)
	}

	return rows, pathErrs, nil
}

func resolve(doc, rec any, extractionPath string, f *schema.Field) (value.Value, []PathError) {
	var errs []PathError

	try := func(path string) (any, bool) {
		v, err := Eval(path, doc)
		if err != nil {
			errs = append(errs, PathError{Field: f.Name, Path: path, Err: err})
			return nil, false
		}
		return v, v != nil
	}

	if f.JSONPath != "" {
		if v, ok := try(f.JSONPath); ok {
			return value.FromAny(v), errs
		}
	}
	if extractionPath != "" {
		if v, ok := try(extractionPath + "." + f.Name); ok {
			return value.FromAny(v), errs
		}
	}
	if obj, ok := rec.(map[string]any); ok {
		if v, ok := obj[f.Name]; ok {
			return value.FromAny(v), errs
		}
	}
	return value.Null(), errs
}
