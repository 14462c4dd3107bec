package schema

// JSONSchema renders t as a draft 2020-12 style schema. Nested objects are
// inlined, nullable fields become anyOf [T, null] and defaults are emitted.
func (t *Type) JSONSchema() map[string]any {
	return t.jsonSchema(false)
}

// StrictJSONSchema renders the variant structured-output backends accept:
// every property is listed as required, objects forbid additional
// properties and defaults are dropped.
func (t *Type) StrictJSONSchema() map[string]any {
	return t.jsonSchema(true)
}

func (t *Type) jsonSchema(strict bool) map[string]any {
	s := map[string]any{"type": string(t.Kind)}
	if t.Description != "" {
		s["description"] = t.Description
	}

	switch t.Kind {
	case Array:
		s["items"] = t.Items.jsonSchema(strict)
	case Object:
		if t.Name != "" {
			s["title"] = t.Name
		}
		props := make(map[string]any, len(t.Fields))
		required := make([]any, 0, len(t.Fields))
		for _, f := range t.Fields {
			props[f.Name] = f.jsonSchema(strict)
			if strict || f.Required {
				required = append(required, f.Name)
			}
		}
		s["properties"] = props
		if strict || len(required) > 0 {
			s["required"] = required
		}
		if strict {
			s["additionalProperties"] = false
		}
	}
	return s
}

func (f *Field) jsonSchema(strict bool) map[string]any {
	p := f.Type.jsonSchema(strict)
	if f.Nullable {
		p = map[string]any{"anyOf": []any{p, map[string]any{"type": "null"}}}
	}
	if f.Description != "" {
		p["description"] = f.Description
	}
	if !strict && f.HasDefault {
		p["default"] = f.Default
	}
	return p
}
