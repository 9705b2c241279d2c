package schema

// IsView reports whether the schema is a composed view.
func (s *Schema) IsView() bool {
	return s.Source.Kind() == KindView
}

// Namespace returns the namespace with the given name.
func (s *Schema) Namespace(name string) (*Namespace, bool) {
	for _, ns := range s.Namespaces {
		if ns.Name == name {
			return ns, true
		}
	}
	return nil, false
}

// Field returns the field with the given canonical name.
func (n *Namespace) Field(name string) (*Field, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldByNameOrAlias returns the field whose canonical name equals name,
// falling back to the first field that lists name as an alias.
func (n *Namespace) FieldByNameOrAlias(name string) (*Field, bool) {
	if f, ok := n.Field(name); ok {
		return f, true
	}
	for _, f := range n.Fields {
		if f.HasAlias(name) {
			return f, true
		}
	}
	return nil, false
}

// Select returns the fields matched by requested names, by canonical name
// or alias, in namespace declaration order.
func (n *Namespace) Select(requested []string) []*Field {
	want := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		want[r] = struct{}{}
	}

	var out []*Field
	for _, f := range n.Fields {
		if _, ok := want[f.Name]; ok {
			out = append(out, f)
			continue
		}
		for _, a := range f.Aliases {
			if _, ok := want[a]; ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// FetchPlan splits selected fields into backend columns and fields derived
// locally. Derived fields contribute their concat components to fetch;
// names are de-duplicated keeping first occurrence.
func FetchPlan(selected []*Field) (fetch []string, derived []*Field) {
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		fetch = append(fetch, name)
	}

	for _, f := range selected {
		if !f.Derived() {
			add(f.Name)
			continue
		}
		derived = append(derived, f)
		for _, c := range f.Transformer.Fields {
			add(c)
		}
	}
	return fetch, derived
}

// Names returns the canonical names of fields.
func Names(fields []*Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
