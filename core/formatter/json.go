package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// JSONFormatter formats output as JSON, in the same shape the query
// endpoint answers with.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatResults formats a batch response as JSON.
func (f *JSONFormatter) FormatResults(w io.Writer, resp *query.BatchResponse, opts FormatOptions) error {
	return f.encode(w, filterColumns(resp, opts.Columns), opts.Compact)
}

// FormatSchema formats a schema as its JSON document.
func (f *JSONFormatter) FormatSchema(w io.Writer, s *schema.Schema, opts FormatOptions) error {
	return f.encode(w, s, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if code := query.CodeOf(err); code != query.CodeInternal {
		output["code"] = string(code)
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// filterColumns returns a copy of resp whose rows hold only columns.
// With no columns resp is returned as is.
func filterColumns(resp *query.BatchResponse, columns []string) *query.BatchResponse {
	if len(columns) == 0 {
		return resp
	}

	out := &query.BatchResponse{IncludeDataTypes: resp.IncludeDataTypes}
	for _, res := range resp.Results {
		rows := make([]value.Row, len(res.Data))
		for i, row := range res.Data {
			filtered := make(value.Row, len(columns))
			for _, col := range columns {
				if v, ok := row[col]; ok {
					filtered[col] = v
				}
			}
			rows[i] = filtered
		}
		res.Data = rows
		out.Results = append(out.Results, res)
	}
	return out
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
