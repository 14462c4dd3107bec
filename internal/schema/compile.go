package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/ident"
)

// DefaultMaxDepth bounds object nesting when Compiler.MaxDepth is zero.
const DefaultMaxDepth = 32

// CollisionPolicy decides what happens when two attributes of one type
// sanitize to the same field name.
type CollisionPolicy int

const (
	// LastWriteWins keeps the first field's position and the last field's definition.
	LastWriteWins CollisionPolicy = iota
	// RejectCollisions fails compilation with a FieldCollisionError.
	RejectCollisions
)

func (p CollisionPolicy) String() string {
	if p == RejectCollisions {
		return "error"
	}
	return "last_write_wins"
}

// ParseCollisionPolicy accepts "last_write_wins" (or "") and "error".
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last_write_wins":
		return LastWriteWins, nil
	case "error":
		return RejectCollisions, nil
	default:
		return LastWriteWins, fmt.Errorf("unknown collision policy %q", s)
	}
}

// Compiler turns attribute definitions into Types. The zero value is usable.
type Compiler struct {
	MaxDepth   int
	Collisions CollisionPolicy
}

// NewCompiler returns a compiler with the default depth limit.
func NewCompiler(collisions CollisionPolicy) *Compiler {
	return &Compiler{MaxDepth: DefaultMaxDepth, Collisions: collisions}
}

func (c *Compiler) maxDepth() int {
	if c == nil || c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

func (c *Compiler) collisions() CollisionPolicy {
	if c == nil {
		return LastWriteWins
	}
	return c.Collisions
}

// Compile builds an object type named after className with one field per
// attribute, in order. It fails on the first invalid attribute.
func (c *Compiler) Compile(className string, attrs []api.AttributeDefinition) (*Type, error) {
	return c.compileObject(ident.Class(className), attrs, 1)
}

// Object assembles an object type from already compiled fields, applying the
// sanitizer and the collision policy. Composed schemas are built with it.
func (c *Compiler) Object(name string, fields []*Field) (*Type, error) {
	t := &Type{Kind: Object, Name: name, Fields: make([]*Field, 0, len(fields))}
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		f.Name = ident.Field(f.Name)
		if i, dup := index[f.Name]; dup {
			if c.collisions() == RejectCollisions {
				return nil, &FieldCollisionError{Type: name, Field: f.Name}
			}
			t.Fields[i] = f
			continue
		}
		index[f.Name] = len(t.Fields)
		t.Fields = append(t.Fields, f)
	}
	if d := t.Depth(); d > c.maxDepth() {
		return nil, &DepthExceededError{Type: name, MaxDepth: c.maxDepth()}
	}
	return t, nil
}

func (c *Compiler) compileObject(name string, attrs []api.AttributeDefinition, depth int) (*Type, error) {
	if depth > c.maxDepth() {
		return nil, &DepthExceededError{Type: name, MaxDepth: c.maxDepth()}
	}
	fields := make([]*Field, 0, len(attrs))
	for _, attr := range attrs {
		f, err := c.compileField(attr, depth)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return c.Object(name, fields)
}

func (c *Compiler) compileField(attr api.AttributeDefinition, depth int) (*Field, error) {
	if !attr.Type.Valid() {
		return nil, &UnknownKindError{Attribute: attr.Name, Kind: attr.Type}
	}
	hasChildren := len(attr.NestedAttributes) > 0
	if attr.Type.HasChildren() && !hasChildren {
		return nil, &MissingNestedDefinitionError{Attribute: attr.Name, Kind: attr.Type}
	}
	if !attr.Type.HasChildren() && hasChildren {
		return nil, &UnexpectedNestedDefinitionError{Attribute: attr.Name, Kind: attr.Type}
	}

	f := &Field{
		Name:        ident.Field(attr.Name),
		Description: attr.Description,
		Nullable:    attr.Nullable,
	}

	var coerce func(any) (any, bool, error)
	switch attr.Type {
	case api.KindString:
		f.Type, coerce = scalar(String), coerceString
	case api.KindInt:
		f.Type, coerce = scalar(Integer), coerceInt
	case api.KindFloat:
		f.Type, coerce = scalar(Number), coerceFloat
	case api.KindBoolean:
		f.Type, coerce = scalar(Boolean), coerceBool
	case api.KindNested:
		sub, err := c.compileObject(ident.TypeName(attr.Name), attr.NestedAttributes, depth+1)
		if err != nil {
			return nil, err
		}
		f.Type = sub
		nullDefault(f)
		return f, nil
	case api.KindListString:
		f.Type = arrayOf(scalar(String))
		listDefault(f)
		return f, nil
	case api.KindListNested:
		sub, err := c.compileObject(ident.TypeName(attr.Name)+"Item", attr.NestedAttributes, depth+1)
		if err != nil {
			return nil, err
		}
		f.Type = arrayOf(sub)
		listDefault(f)
		return f, nil
	}

	v, present, err := coerce(attr.DefaultValue)
	if err != nil {
		return nil, &InvalidDefaultError{Attribute: attr.Name, Kind: attr.Type, Value: attr.DefaultValue, Err: err}
	}
	if present {
		f.Default, f.HasDefault = v, true
		return f, nil
	}
	nullDefault(f)
	return f, nil
}

// nullDefault makes nullable fields default to null and everything else required.
func nullDefault(f *Field) {
	if f.Nullable {
		f.Default, f.HasDefault = nil, true
		return
	}
	f.Required = true
}

// Lists are never required: non-nullable lists default to empty.
func listDefault(f *Field) {
	f.HasDefault = true
	if f.Nullable {
		f.Default = nil
		return
	}
	f.Default = []any{}
}

var errNotNumeric = errors.New("not numeric")

// String defaults keep "" as a real value; every other kind treats "" as absent.
func coerceString(v any) (any, bool, error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return v, true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case json.Number:
		return v.String(), true, nil
	default:
		return fmt.Sprint(v), true, nil
	}
}

func coerceInt(v any) (any, bool, error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false, errNotNumeric
		}
		return floatToInt(f)
	case bool:
		if v {
			return int64(1), true, nil
		}
		return int64(0), true, nil
	case float64:
		return floatToInt(v)
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		return coerceInt(v.String())
	default:
		return nil, false, fmt.Errorf("unsupported default type %T", v)
	}
}

func floatToInt(f float64) (any, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 1<<63 || f < -(1<<63) {
		return nil, false, errNotNumeric
	}
	return int64(math.Trunc(f)), true, nil
}

func coerceFloat(v any) (any, bool, error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false, errNotNumeric
		}
		return f, true, nil
	case bool:
		if v {
			return 1.0, true, nil
		}
		return 0.0, true, nil
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		return coerceFloat(v.String())
	default:
		return nil, false, fmt.Errorf("unsupported default type %T", v)
	}
}

// coerceBool: "true", "1" and "yes" (any case) are true; every other
// non-empty string is false.
func coerceBool(v any) (any, bool, error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			return nil, false, nil
		}
		return s == "true" || s == "1" || s == "yes", true, nil
	case bool:
		return v, true, nil
	case float64:
		return v != 0, true, nil
	case int:
		return v != 0, true, nil
	case int64:
		return v != 0, true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, false, errNotNumeric
		}
		return f != 0, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported default type %T", v)
	}
}
