package api

import (
	"encoding/json"
	"fmt"
)

// AttributeKind is the closed set of field kinds an attribute node can declare.
type AttributeKind string

const (
	KindString     AttributeKind = "string"
	KindInt        AttributeKind = "int"
	KindFloat      AttributeKind = "float"
	KindBoolean    AttributeKind = "boolean"
	KindNested     AttributeKind = "nested"
	KindListString AttributeKind = "list_string"
	KindListNested AttributeKind = "list_nested"
)

// Kinds lists every AttributeKind in declaration order.
var Kinds = []AttributeKind{
	KindString, KindInt, KindFloat, KindBoolean, KindNested, KindListString, KindListNested,
}

// Valid reports whether k is one of the declared kinds.
func (k AttributeKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// HasChildren reports whether attributes of this kind carry nested definitions.
func (k AttributeKind) HasChildren() bool {
	return k == KindNested || k == KindListNested
}

// AttributeDefinition describes one schema field.
//
// NestedAttributes is non-empty exactly when Type is KindNested or KindListNested.
// DefaultValue holds whatever the client sent (string, number, bool or nil);
// the compiler coerces it per kind.
type AttributeDefinition struct {
	Name             string                `json:"name"`
	Type             AttributeKind         `json:"type"`
	Nullable         bool                  `json:"nullable"`
	Description      string                `json:"description"`
	DefaultValue     any                   `json:"default_value,omitempty"`
	NestedAttributes []AttributeDefinition `json:"nested_attributes,omitempty"`
}

// UnmarshalJSON accepts both the snake_case wire form and the camelCase
// form the graph editor stores inside node payloads.
func (a *AttributeDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name                 string                `json:"name"`
		Type                 AttributeKind         `json:"type"`
		Nullable             bool                  `json:"nullable"`
		Description          string                `json:"description"`
		DefaultValue         any                   `json:"default_value"`
		DefaultValueCamel    any                   `json:"defaultValue"`
		NestedAttributes     []AttributeDefinition `json:"nested_attributes"`
		NestedAttributeCamel []AttributeDefinition `json:"nestedAttributes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode attribute: %w", err)
	}

	a.Name = raw.Name
	a.Type = raw.Type
	a.Nullable = raw.Nullable
	a.Description = raw.Description
	a.DefaultValue = raw.DefaultValue
	if a.DefaultValue == nil {
		a.DefaultValue = raw.DefaultValueCamel
	}
	a.NestedAttributes = raw.NestedAttributes
	if a.NestedAttributes == nil {
		a.NestedAttributes = raw.NestedAttributeCamel
	}
	return nil
}
