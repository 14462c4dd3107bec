package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/attrgraph/api"
)

var (
	// ErrMissingNestedDefinition matches every MissingNestedDefinitionError.
	ErrMissingNestedDefinition = errors.New("missing nested definition")
	// ErrTooDeep matches every DepthExceededError.
	ErrTooDeep = errors.New("schema too deep")
)

// MissingNestedDefinitionError is returned when a nested or list_nested
// attribute has no child attributes.
type MissingNestedDefinitionError struct {
	Attribute string
	Kind      api.AttributeKind
}

func (e *MissingNestedDefinitionError) Error() string {
	return fmt.Sprintf("%s attribute %q must have nested attributes", e.Kind, e.Attribute)
}

func (e *MissingNestedDefinitionError) Is(target error) bool {
	return target == ErrMissingNestedDefinition
}

// UnexpectedNestedDefinitionError is returned when a scalar or list_string
// attribute carries child attributes.
type UnexpectedNestedDefinitionError struct {
	Attribute string
	Kind      api.AttributeKind
}

func (e *UnexpectedNestedDefinitionError) Error() string {
	return fmt.Sprintf("%s attribute %q cannot have nested attributes", e.Kind, e.Attribute)
}

// UnknownKindError is returned for an attribute type outside api.Kinds.
type UnknownKindError struct {
	Attribute string
	Kind      api.AttributeKind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("attribute %q has unknown type %q", e.Attribute, e.Kind)
}

// InvalidDefaultError is returned when a default value cannot be coerced to
// the attribute's kind.
type InvalidDefaultError struct {
	Attribute string
	Kind      api.AttributeKind
	Value     any
	Err       error
}

func (e *InvalidDefaultError) Error() string {
	return fmt.Sprintf("attribute %q: default %v is not a valid %s: %v", e.Attribute, e.Value, e.Kind, e.Err)
}

func (e *InvalidDefaultError) Unwrap() error { return e.Err }

// DepthExceededError is returned when nesting goes deeper than the compiler allows.
type DepthExceededError struct {
	Type     string
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("type %q exceeds maximum nesting depth %d", e.Type, e.MaxDepth)
}

func (e *DepthExceededError) Is(target error) bool {
	return target == ErrTooDeep
}

// FieldCollisionError is returned under RejectCollisions when two attributes
// sanitize to the same field name.
type FieldCollisionError struct {
	Type  string
	Field string
}

func (e *FieldCollisionError) Error() string {
	return fmt.Sprintf("type %q declares field %q more than once", e.Type, e.Field)
}

// ValidationError locates one problem in a validated value.
// Path is a JSONPath-style location such as $.address.lines[2].
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors aggregates every problem found in one value.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}
