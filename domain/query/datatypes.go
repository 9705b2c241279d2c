package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/artpar/schemaql/domain/schema"
)

// TypeEntry is one field name with its declared type.
type TypeEntry struct {
	Field string
	Type  string
}

// DataTypes is an ordered field→type map. It encodes as a JSON object
// whose keys keep insertion order.
type DataTypes struct {
	entries []TypeEntry
}

// TypesOf collects the declared types of every namespace field.
func TypesOf(ns *schema.Namespace) *DataTypes {
	dt := &DataTypes{entries: make([]TypeEntry, 0, len(ns.Fields))}
	for _, f := range ns.Fields {
		dt.Set(f.Name, f.Type)
	}
	return dt
}

// Set adds or replaces an entry; a replaced entry keeps its position.
func (d *DataTypes) Set(field, typ string) {
	for i := range d.entries {
		if d.entries[i].Field == field {
			d.entries[i].Type = typ
			return
		}
	}
	d.entries = append(d.entries, TypeEntry{Field: field, Type: typ})
}

// Get returns the type recorded for field.
func (d *DataTypes) Get(field string) (string, bool) {
	for _, e := range d.entries {
		if e.Field == field {
			return e.Type, true
		}
	}
	return "", false
}

// Entries returns the entries in order.
func (d *DataTypes) Entries() []TypeEntry {
	return append([]TypeEntry(nil), d.entries...)
}

func (d *DataTypes) Len() int { return len(d.entries) }

// MarshalJSON implements json.Marshaler.
func (d *DataTypes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if e.Type == "" {
			buf.WriteString("null")
			continue
		}
		v, err := json.Marshal(e.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML renders the entries as a mapping in insertion order.
func (d *DataTypes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range d.entries {
		val := &yaml.Node{Kind: yaml.ScalarNode, Value: e.Type}
		if e.Type == "" {
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.Field}, val)
	}
	return node, nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (d *DataTypes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dataTypes: expected object")
	}

	d.entries = nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var typ *string
		if err := dec.Decode(&typ); err != nil {
			return fmt.Errorf("dataTypes %q: %w", key, err)
		}
		e := TypeEntry{Field: key}
		if typ != nil {
			e.Type = *typ
		}
		d.entries = append(d.entries, e)
	}
	_, err = dec.Token()
	return err
}
