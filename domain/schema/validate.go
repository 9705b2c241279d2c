package schema

import (
	"fmt"
	"strings"
)

// Validate checks the structural invariants of a schema.
func Validate(s *Schema) error {
	var errs []string

	if s.Name == "" {
		errs = append(errs, "schemaName is required")
	}
	if strings.TrimSpace(s.Source.Type) == "" {
		errs = append(errs, "source.dataSourceType is required")
	}

	switch s.Source.Kind() {
	case KindAPI:
		if s.Source.APIURL == "" {
			errs = append(errs, "api source requires apiUrl")
		}
	case KindView:
		errs = append(errs, validateView(s.Source)...)
	}

	seen := make(map[string]bool, len(s.Namespaces))
	for i, ns := range s.Namespaces {
		if ns == nil || ns.Name == "" {
			errs = append(errs, fmt.Sprintf("namespace #%d: name is required", i))
			continue
		}
		if seen[ns.Name] {
			errs = append(errs, fmt.Sprintf("namespace %q: declared more than once", ns.Name))
		}
		seen[ns.Name] = true
		errs = append(errs, validateNamespace(ns)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateNamespace(ns *Namespace) []string {
	var errs []string

	errs = append(errs, validateFieldNames(ns.Name, ns.Fields)...)

	for _, f := range ns.Fields {
		for _, a := range f.Aliases {
			if other, ok := ns.Field(a); ok && other != f {
				errs = append(errs, fmt.Sprintf("namespace %q: alias %q of field %q collides with field %q", ns.Name, a, f.Name, other.Name))
			}
		}

		if f.Transformer == nil {
			continue
		}
		t := f.Transformer
		switch t.Kind() {
		case TransformConcat:
			if len(t.Fields) == 0 {
				errs = append(errs, fmt.Sprintf("namespace %q: field %q: concat transformer requires fields", ns.Name, f.Name))
			}
		case TransformExpr:
			if strings.TrimSpace(t.Expression) == "" {
				errs = append(errs, fmt.Sprintf("namespace %q: field %q: expr transformer requires expression", ns.Name, f.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("namespace %q: field %q: unknown transformer type %q", ns.Name, f.Name, t.Type))
		}
		for _, c := range t.Fields {
			if c == f.Name {
				errs = append(errs, fmt.Sprintf("namespace %q: field %q: transformer references itself", ns.Name, f.Name))
				continue
			}
			if _, ok := ns.Field(c); !ok {
				errs = append(errs, fmt.Sprintf("namespace %q: field %q: transformer component %q not in namespace", ns.Name, f.Name, c))
			}
		}
	}

	return errs
}

func validateFieldNames(owner string, fields []*Field) []string {
	var errs []string
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f == nil || f.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: field #%d: name is required", owner, i))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("%s: field %q: declared more than once", owner, f.Name))
		}
		seen[f.Name] = true
		if len(f.NestedFields) > 0 {
			errs = append(errs, validateFieldNames(owner+"."+f.Name, f.NestedFields)...)
		}
	}
	return errs
}

func validateView(ds DataSource) []string {
	var errs []string

	if ds.GlobalKey == "" {
		errs = append(errs, "view source requires globalKey")
	}
	if ds.Base == nil || ds.Base.Schema == "" || ds.Base.Namespace == "" {
		errs = append(errs, "view source requires base schema and namespace")
		return errs
	}

	known := map[string]bool{ds.Base.Namespace: true}
	for i, j := range ds.Joins {
		if j.Schema == "" || j.Namespace == "" || j.Key == "" {
			errs = append(errs, fmt.Sprintf("join #%d: schema, namespace and key are required", i))
			continue
		}
		known[j.Namespace] = true
	}

	for _, vf := range ds.ViewFields {
		ns, field, ok := vf.Split()
		if !ok || field == "" {
			errs = append(errs, fmt.Sprintf("viewField %q: from must be namespace.field", vf.From))
			continue
		}
		if !known[ns] {
			errs = append(errs, fmt.Sprintf("viewField %q: namespace %q is neither base nor join", vf.From, ns))
		}
		if vf.As == "" {
			errs = append(errs, fmt.Sprintf("viewField %q: as is required", vf.From))
		}
	}

	return errs
}
