// Package schema defines the declarative model of a queryable data source:
// a Schema names its source and owns an ordered list of namespaces, each
// namespace owns an ordered list of fields.
//
// Schemas are built by decoding JSON or YAML documents and are treated as
// immutable afterwards. Reloading a schema replaces the instance wholesale.
package schema

import "strings"

// SourceKind identifies how a schema's data is fetched.
type SourceKind string

const (
	KindAPI      SourceKind = "api"
	KindDatabase SourceKind = "database"
	KindView     SourceKind = "view"
)

// Schema is a named data source with its namespaces.
type Schema struct {
	Name       string       `json:"schemaName" yaml:"schemaName"`
	Source     DataSource   `json:"source" yaml:"source"`
	Namespaces []*Namespace `json:"namespaces" yaml:"namespaces"`
}

// DataSource describes where a schema's rows come from. Which fields apply
// depends on Type: api uses APIURL and HTTPMethod, database uses DBName,
// view uses GlobalKey, Base, Joins and ViewFields.
type DataSource struct {
	Name            string      `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	Type            string      `json:"dataSourceType" yaml:"dataSourceType"`
	APIURL          string      `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
	HTTPMethod      string      `json:"httpMethod,omitempty" yaml:"httpMethod,omitempty"`
	DBName          string      `json:"dbName,omitempty" yaml:"dbName,omitempty"`
	MandatoryParams []string    `json:"mandatoryParams,omitempty" yaml:"mandatoryParams,omitempty"`
	GlobalKey       string      `json:"globalKey,omitempty" yaml:"globalKey,omitempty"`
	ViewFields      []ViewField `json:"viewFields,omitempty" yaml:"viewFields,omitempty"`
	Base            *BaseRef    `json:"base,omitempty" yaml:"base,omitempty"`
	Joins           []JoinRef   `json:"joins,omitempty" yaml:"joins,omitempty"`
}

// Kind returns the lower-cased source type.
func (d DataSource) Kind() SourceKind {
	return SourceKind(strings.ToLower(strings.TrimSpace(d.Type)))
}

// Connection returns the lower-cased logical connection name of a
// database source, or "default" when none is declared.
func (d DataSource) Connection() string {
	if d.DBName == "" {
		return "default"
	}
	return strings.ToLower(d.DBName)
}

// ViewField maps "namespace.field" of a base or join namespace to an
// output alias.
type ViewField struct {
	From string `json:"from" yaml:"from"`
	As   string `json:"as" yaml:"as"`
}

// Split returns the namespace and field parts of From.
func (v ViewField) Split() (namespace, field string, ok bool) {
	return strings.Cut(v.From, ".")
}

// BaseRef points a view at its relational base namespace.
type BaseRef struct {
	Schema    string `json:"schema" yaml:"schema"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Key       string `json:"key" yaml:"key"`
}

// JoinRef points a view at a joined namespace. Type is informational;
// every join behaves as a left outer lookup.
type JoinRef struct {
	Schema    string `json:"schema" yaml:"schema"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Key       string `json:"key" yaml:"key"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
}

// AccessControl lists principals allowed to read or write. It is carried
// for external enforcement only.
type AccessControl struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// Namespace is a logical table or resource.
type Namespace struct {
	Name            string         `json:"namespace" yaml:"namespace"`
	Alias           []string       `json:"alias,omitempty" yaml:"alias,omitempty"`
	MandatoryKey    string         `json:"mandatoryKey,omitempty" yaml:"mandatoryKey,omitempty"`
	PrimaryKey      []string       `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	Fields          []*Field       `json:"fields" yaml:"fields"`
	AccessControl   *AccessControl `json:"accessControl,omitempty" yaml:"accessControl,omitempty"`
	ResultJSONPath  string         `json:"resultJsonPath,omitempty" yaml:"resultJsonPath,omitempty"`
	Cacheable       bool           `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
	CacheTTL        int64          `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty"`
	CacheKeyPattern string         `json:"cacheKeyPattern,omitempty" yaml:"cacheKeyPattern,omitempty"`
}

// Field is a single attribute of a namespace.
type Field struct {
	Name          string         `json:"name" yaml:"name"`
	Type          string         `json:"type,omitempty" yaml:"type,omitempty"`
	JSONPath      string         `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	Required      bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Aliases       []string       `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Flatten       bool           `json:"flatten,omitempty" yaml:"flatten,omitempty"`
	Sensitive     bool           `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
	NestedFields  []*Field       `json:"nestedFields,omitempty" yaml:"nestedFields,omitempty"`
	AccessControl *AccessControl `json:"accessControl,omitempty" yaml:"accessControl,omitempty"`
	Transformer   *Transformer   `json:"transformer,omitempty" yaml:"transformer,omitempty"`
	Computed      bool           `json:"computed,omitempty" yaml:"computed,omitempty"`
}

// Transformer derives a computed field from other fields of the same row.
//
// Supported types are "concat", which joins the string forms of Fields
// with Separator, and "expr", which evaluates Expression with the row's
// fields in scope.
type Transformer struct {
	Type        string   `json:"type" yaml:"type"`
	Pattern     string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	ReplaceWith string   `json:"replaceWith,omitempty" yaml:"replaceWith,omitempty"`
	Fields      []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Separator   string   `json:"separator,omitempty" yaml:"separator,omitempty"`
	Expression  string   `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Transformer types.
const (
	TransformConcat = "concat"
	TransformExpr   = "expr"
)

// Kind returns the lower-cased transformer type. An empty type is treated
// as concat.
func (t *Transformer) Kind() string {
	k := strings.ToLower(strings.TrimSpace(t.Type))
	if k == "" {
		return TransformConcat
	}
	return k
}

// Derived reports whether the field is computed locally from components
// rather than fetched from the backend.
func (f *Field) Derived() bool {
	return f.Computed && f.Transformer != nil
}

// FieldType returns the normalized declared type.
func (f *Field) FieldType() FieldType {
	return NormalizeType(f.Type)
}

// HasAlias reports whether name is one of the field's aliases.
func (f *Field) HasAlias(name string) bool {
	for _, a := range f.Aliases {
		if a == name {
			return true
		}
	}
	return false
}
