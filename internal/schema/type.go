// Package schema compiles attribute definitions into a validatable type tree
// and renders that tree as JSON Schema, YAML or Go source.
package schema

import (
	"encoding/json"
)

// Kind is the JSON type a Type validates.
type Kind string

const (
	String  Kind = "string"
	Integer Kind = "integer"
	Number  Kind = "number"
	Boolean Kind = "boolean"
	Object  Kind = "object"
	Array   Kind = "array"
)

// Type is one node of a compiled schema. Objects carry Name and Fields in
// declaration order; arrays carry Items.
type Type struct {
	Kind        Kind
	Name        string
	Description string
	Fields      []*Field
	Items       *Type
}

// Field is a named member of an object Type.
//
// A field is either Required or has a default; a nullable field without an
// explicit default defaults to null.
type Field struct {
	Name        string
	Description string
	Type        *Type
	Nullable    bool
	Required    bool
	Default     any
	HasDefault  bool
}

// Field returns the field called name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldNames lists field names in declaration order.
func (t *Type) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Depth is 1 for a flat object and grows by one per nested object level.
func (t *Type) Depth() int {
	switch t.Kind {
	case Array:
		return t.Items.Depth()
	case Object:
		deepest := 0
		for _, f := range t.Fields {
			deepest = max(deepest, f.Type.Depth())
		}
		return deepest + 1
	default:
		return 0
	}
}

// MarshalJSON renders the type as JSON Schema.
func (t *Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.JSONSchema())
}

func scalar(k Kind) *Type { return &Type{Kind: k} }

func arrayOf(items *Type) *Type { return &Type{Kind: Array, Items: items} }
