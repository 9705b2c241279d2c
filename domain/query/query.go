// Package query provides the request/response value types of the query
// engine and the helpers that shape them.
package query

import (
	"sort"

	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// Arguments are the named filter values of a sub-query.
type Arguments map[string]value.Value

// Keys returns argument names in the deterministic order used for
// statement generation and parameter binding.
func (a Arguments) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Only returns a copy holding just the named arguments that are present.
func (a Arguments) Only(names ...string) Arguments {
	out := make(Arguments, len(names))
	for _, n := range names {
		if v, ok := a[n]; ok {
			out[n] = v
		}
	}
	return out
}

// SubQuery selects fields of one namespace of one schema.
type SubQuery struct {
	Schema     string    `json:"schema"`
	Namespace  string    `json:"namespace,omitempty"`
	DataSource string    `json:"dataSource,omitempty"`
	Arguments  Arguments `json:"arguments"`
	Fields     []string  `json:"fields"`
}

// Batch is a set of sub-queries processed together.
type Batch struct {
	Queries          []SubQuery `json:"queries"`
	IncludeDataTypes bool       `json:"includeDataTypes"`
}

// Result is the response to one sub-query.
type Result struct {
	Namespace  string      `json:"namespace" yaml:"namespace"`
	DataSource string      `json:"dataSource" yaml:"dataSource"`
	Schema     string      `json:"schema" yaml:"schema"`
	Data       []value.Row `json:"data" yaml:"data"`
	DataTypes  *DataTypes  `json:"dataTypes,omitempty" yaml:"dataTypes,omitempty"`
}

// BatchResponse holds results in request order.
type BatchResponse struct {
	Results          []Result `json:"results" yaml:"results"`
	IncludeDataTypes bool     `json:"includeDataTypes" yaml:"includeDataTypes"`
}

// NewResult shapes the response for a sub-query. When includeTypes is set
// the declared type of every namespace field is attached in declaration
// order.
func NewResult(namespace string, s *schema.Schema, ns *schema.Namespace, rows []value.Row, includeTypes bool) Result {
	if rows == nil {
		rows = []value.Row{}
	}
	res := Result{
		Namespace:  namespace,
		DataSource: s.Source.Name,
		Schema:     s.Name,
		Data:       rows,
	}
	if includeTypes && ns != nil {
		res.DataTypes = TypesOf(ns)
	}
	return res
}

// MissingMandatory returns the mandatory parameters absent from args.
func MissingMandatory(ds schema.DataSource, args Arguments) []string {
	var missing []string
	for _, p := range ds.MandatoryParams {
		if _, ok := args[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
