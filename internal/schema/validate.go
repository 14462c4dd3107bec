package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"
)

// Validate reports whether value (as decoded by encoding/json) conforms to t.
// The returned error is a ValidationErrors listing every problem found.
func (t *Type) Validate(value any) error {
	_, err := t.Apply(value)
	return err
}

// Apply validates value and returns a copy with defaults filled in for
// absent optional fields. Integers come back as int64, numbers as float64.
func (t *Type) Apply(value any) (any, error) {
	var errs ValidationErrors
	out := t.apply("$", value, &errs)
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (t *Type) apply(path string, v any, errs *ValidationErrors) any {
	fail := func(format string, args ...any) any {
		*errs = append(*errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
		return nil
	}

	switch t.Kind {
	case Object:
		m, ok := v.(map[string]any)
		if !ok {
			return fail("expected object, got %s", jsonType(v))
		}
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			fp := path + "." + f.Name
			raw, present := m[f.Name]
			switch {
			case !present && f.Required:
				*errs = append(*errs, &ValidationError{Path: fp, Message: "field required"})
			case !present:
				out[f.Name] = cloneDefault(f.Default)
			case raw == nil && f.Nullable:
				out[f.Name] = nil
			case raw == nil:
				*errs = append(*errs, &ValidationError{Path: fp, Message: "value must not be null"})
			default:
				out[f.Name] = f.Type.apply(fp, raw, errs)
			}
		}
		extra := lo.Filter(lo.Keys(m), func(k string, _ int) bool { return t.Field(k) == nil })
		slices.Sort(extra)
		for _, k := range extra {
			*errs = append(*errs, &ValidationError{Path: path + "." + k, Message: "unknown field"})
		}
		return out

	case Array:
		items, ok := v.([]any)
		if !ok {
			return fail("expected array, got %s", jsonType(v))
		}
		out := make([]any, len(items))
		for i, item := range items {
			ip := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				*errs = append(*errs, &ValidationError{Path: ip, Message: "value must not be null"})
				continue
			}
			out[i] = t.Items.apply(ip, item, errs)
		}
		return out

	case String:
		s, ok := v.(string)
		if !ok {
			return fail("expected string, got %s", jsonType(v))
		}
		return s

	case Integer:
		if n, ok := asInt(v); ok {
			return n
		}
		return fail("expected integer, got %s", jsonType(v))

	case Number:
		if f, ok := asFloat(v); ok {
			return f
		}
		return fail("expected number, got %s", jsonType(v))

	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return fail("expected boolean, got %s", jsonType(v))
		}
		return b
	}
	return fail("unsupported schema kind %q", t.Kind)
}

func asInt(v any) (int64, bool) {
	switch v := v.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v >= 1<<63 || v < -(1<<63) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func cloneDefault(v any) any {
	if s, ok := v.([]any); ok {
		return slices.Clone(s)
	}
	return v
}
