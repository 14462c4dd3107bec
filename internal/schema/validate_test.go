package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/api"
)

func orderType(t *testing.T) *Type {
	t.Helper()
	typ, err := NewCompiler(LastWriteWins).Compile("Order", []api.AttributeDefinition{
		attr("id", api.KindString, false),
		attr("quantity", api.KindInt, false),
		attr("price", api.KindFloat, false),
		attr("paid", api.KindBoolean, false),
		attr("note", api.KindString, true),
		attr("tags", api.KindListString, true),
	})
	require.NoError(t, err)
	return typ
}

func validOrder() map[string]any {
	return map[string]any{
		"id":       "o-1",
		"quantity": 3.0,
		"price":    9.5,
		"paid":     true,
	}
}

func TestValidate(t *testing.T) {
	typ := orderType(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		paths  []string
	}{
		{"valid", func(map[string]any) {}, nil},
		{"integral float is an int", func(m map[string]any) { m["quantity"] = 4.0 }, nil},
		{"json number", func(m map[string]any) { m["quantity"] = json.Number("7") }, nil},
		{"int for number", func(m map[string]any) { m["price"] = 10 }, nil},
		{"explicit null on nullable", func(m map[string]any) { m["note"] = nil }, nil},
		{"int64 minimum", func(m map[string]any) { m["quantity"] = -math.Exp2(63) }, nil},
		{"int64 overflow", func(m map[string]any) { m["quantity"] = math.Exp2(63) }, []string{"$.quantity"}},
		{"fractional int", func(m map[string]any) { m["quantity"] = 3.5 }, []string{"$.quantity"}},
		{"wrong scalar kinds", func(m map[string]any) {
			m["id"] = 1.0
			m["paid"] = "yes"
		}, []string{"$.id", "$.paid"}},
		{"null on required", func(m map[string]any) { m["price"] = nil }, []string{"$.price"}},
		{"missing required", func(m map[string]any) { delete(m, "id") }, []string{"$.id"}},
		{"unknown fields sorted", func(m map[string]any) {
			m["zeta"] = 1.0
			m["alpha"] = 2.0
		}, []string{"$.alpha", "$.zeta"}},
		{"null list item", func(m map[string]any) { m["tags"] = []any{"a", nil, 3.0} }, []string{"$.tags[1]", "$.tags[2]"}},
		{"list expected", func(m map[string]any) { m["tags"] = "a,b" }, []string{"$.tags"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validOrder()
			tt.mutate(v)
			err := typ.Validate(v)
			if tt.paths == nil {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			got := make([]string, len(verrs))
			for i, e := range verrs {
				got[i] = e.Path
			}
			assert.ElementsMatch(t, tt.paths, got)
		})
	}
}

func TestValidateRejectsNonObjectRoot(t *testing.T) {
	err := orderType(t).Validate([]any{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "$: expected object, got array", verrs[0].Error())
}

func TestApplyNormalizesAndFillsDefaults(t *testing.T) {
	out, err := orderType(t).Apply(validOrder())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":       "o-1",
		"quantity": int64(3),
		"price":    9.5,
		"paid":     true,
		"note":     nil,
		"tags":     nil,
	}, out)
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Path: "$.a", Message: "field required"},
		{Path: "$.b[0]", Message: "expected string, got number"},
	}
	assert.Equal(t, "$.a: field required; $.b[0]: expected string, got number", errs.Error())
}
