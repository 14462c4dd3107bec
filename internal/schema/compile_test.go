package schema

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/api"
)

func attr(name string, kind api.AttributeKind, nullable bool, children ...api.AttributeDefinition) api.AttributeDefinition {
	return api.AttributeDefinition{Name: name, Type: kind, Nullable: nullable, NestedAttributes: children}
}

func withDefault(a api.AttributeDefinition, v any) api.AttributeDefinition {
	a.DefaultValue = v
	return a
}

func TestCompileScalars(t *testing.T) {
	c := NewCompiler(LastWriteWins)
	typ, err := c.Compile("Person", []api.AttributeDefinition{
		attr("name", api.KindString, false),
		attr("age", api.KindInt, false),
		attr("height", api.KindFloat, false),
		attr("active", api.KindBoolean, false),
	})
	require.NoError(t, err)

	assert.Equal(t, "Person", typ.Name)
	assert.Equal(t, []string{"name", "age", "height", "active"}, typ.FieldNames())
	for _, f := range typ.Fields {
		assert.True(t, f.Required, f.Name)
	}
	assert.Equal(t, Integer, typ.Field("age").Type.Kind)
	assert.Equal(t, Number, typ.Field("height").Type.Kind)

	require.NoError(t, typ.Validate(map[string]any{"name": "Ada", "age": 36.0, "height": 1.7, "active": true}))
	assert.Error(t, typ.Validate(map[string]any{"name": "Ada", "age": 36.0, "height": 1.7}))
}

func TestCompileDefaults(t *testing.T) {
	c := NewCompiler(LastWriteWins)
	typ, err := c.Compile("Defaults", []api.AttributeDefinition{
		withDefault(attr("title", api.KindString, false), ""),
		withDefault(attr("count", api.KindInt, false), "7"),
		withDefault(attr("zero", api.KindInt, false), 0.0),
		withDefault(attr("blank", api.KindInt, false), ""),
		withDefault(attr("ratio", api.KindFloat, true), "0.5"),
		withDefault(attr("yes", api.KindBoolean, false), "YES"),
		withDefault(attr("no", api.KindBoolean, false), "nope"),
		attr("nick", api.KindString, true),
	})
	require.NoError(t, err)

	cases := []struct {
		field    string
		required bool
		def      any
	}{
		{"title", false, ""},
		{"count", false, int64(7)},
		{"zero", false, int64(0)},
		{"blank", true, nil},
		{"ratio", false, 0.5},
		{"yes", false, true},
		{"no", false, false},
		{"nick", false, nil},
	}
	for _, tc := range cases {
		f := typ.Field(tc.field)
		require.NotNil(t, f, tc.field)
		assert.Equal(t, tc.required, f.Required, tc.field)
		assert.Equal(t, !tc.required, f.HasDefault, tc.field)
		assert.Equal(t, tc.def, f.Default, tc.field)
	}
}

func TestCompileInvalidDefault(t *testing.T) {
	_, err := NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{
		withDefault(attr("age", api.KindInt, false), "thirty"),
	})
	var target *InvalidDefaultError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "age", target.Attribute)
}

func TestCompileIntDefaultOutOfRange(t *testing.T) {
	for _, v := range []any{math.Exp2(63), "9223372036854775808", -math.Exp2(64)} {
		_, err := NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{
			withDefault(attr("n", api.KindInt, false), v),
		})
		var target *InvalidDefaultError
		assert.ErrorAs(t, err, &target, "default %v", v)
	}

	typ, err := NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{
		withDefault(attr("n", api.KindInt, false), -math.Exp2(63)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), typ.Field("n").Default)
}

func TestNullableWithoutDefaultAcceptsAbsence(t *testing.T) {
	typ, err := NewCompiler(LastWriteWins).Compile("Person", []api.AttributeDefinition{
		attr("nick", api.KindString, true),
	})
	require.NoError(t, err)

	out, err := typ.Apply(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nick": nil}, out)

	require.NoError(t, typ.Validate(map[string]any{"nick": nil}))
}

func TestCompileTwoLevelNested(t *testing.T) {
	typ, err := NewCompiler(LastWriteWins).Compile("Person", []api.AttributeDefinition{
		attr("address", api.KindNested, false,
			attr("city", api.KindString, false),
			attr("geo", api.KindNested, true,
				attr("lat", api.KindFloat, false),
				attr("lng", api.KindFloat, false),
			),
		),
		attr("phones", api.KindListNested, false,
			attr("number", api.KindString, false),
		),
		attr("tags", api.KindListString, true),
	})
	require.NoError(t, err)

	address := typ.Field("address")
	require.NotNil(t, address)
	assert.True(t, address.Required)
	assert.Equal(t, "Address", address.Type.Name)
	geo := address.Type.Field("geo")
	require.NotNil(t, geo)
	assert.Equal(t, "Geo", geo.Type.Name)
	assert.True(t, geo.HasDefault)
	assert.Nil(t, geo.Default)

	phones := typ.Field("phones")
	assert.Equal(t, Array, phones.Type.Kind)
	assert.Equal(t, "PhonesItem", phones.Type.Items.Name)
	assert.Equal(t, []any{}, phones.Default)
	assert.Equal(t, 3, typ.Depth())

	out, err := typ.Apply(map[string]any{
		"address": map[string]any{"city": "Oslo"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"address": map[string]any{"city": "Oslo", "geo": nil},
		"phones":  []any{},
		"tags":    nil,
	}, out)

	err = typ.Validate(map[string]any{
		"address": map[string]any{"city": "Oslo", "geo": map[string]any{"lat": 1.0}},
		"phones":  []any{map[string]any{"number": 5.0}},
	})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	paths := make([]string, len(verrs))
	for i, e := range verrs {
		paths[i] = e.Path
	}
	assert.ElementsMatch(t, []string{"$.address.geo.lng", "$.phones[0].number"}, paths)
}

func TestCompileMissingChildren(t *testing.T) {
	for _, kind := range []api.AttributeKind{api.KindNested, api.KindListNested} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{attr("inner", kind, false)})
			var target *MissingNestedDefinitionError
			require.ErrorAs(t, err, &target)
			assert.Equal(t, "inner", target.Attribute)
			assert.Equal(t, kind, target.Kind)
			assert.True(t, errors.Is(err, ErrMissingNestedDefinition))
		})
	}
}

func TestCompileRejectsBadShapes(t *testing.T) {
	_, err := NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{
		attr("name", api.KindString, false, attr("oops", api.KindString, false)),
	})
	var unexpected *UnexpectedNestedDefinitionError
	assert.ErrorAs(t, err, &unexpected)

	_, err = NewCompiler(LastWriteWins).Compile("X", []api.AttributeDefinition{attr("price", "decimal", false)})
	var unknown *UnknownKindError
	assert.ErrorAs(t, err, &unknown)
}

func TestPersonAgeExample(t *testing.T) {
	typ, err := NewCompiler(LastWriteWins).Compile("Person", []api.AttributeDefinition{
		{Name: "age", Type: api.KindInt, Nullable: false, Description: "Age in years"},
	})
	require.NoError(t, err)

	require.NoError(t, typ.Validate(map[string]any{"age": 30.0}))

	var verrs ValidationErrors
	require.ErrorAs(t, typ.Validate(map[string]any{"age": "thirty"}), &verrs)
	assert.Equal(t, "$.age", verrs[0].Path)

	require.ErrorAs(t, typ.Validate(map[string]any{}), &verrs)
	assert.Equal(t, "field required", verrs[0].Message)

	assert.Error(t, typ.Validate(map[string]any{"age": 30.5}))
}

func TestCompileDepthExceeded(t *testing.T) {
	leaf := attr("leaf", api.KindString, false)
	nested := leaf
	for range 4 {
		nested = attr("level", api.KindNested, false, nested)
	}

	c := &Compiler{MaxDepth: 4}
	_, err := c.Compile("Deep", []api.AttributeDefinition{nested})
	var target *DepthExceededError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, 4, target.MaxDepth)
	assert.True(t, errors.Is(err, ErrTooDeep))

	c.MaxDepth = 5
	typ, err := c.Compile("Deep", []api.AttributeDefinition{nested})
	require.NoError(t, err)
	assert.Equal(t, 5, typ.Depth())
}

func TestCollisionPolicies(t *testing.T) {
	attrs := []api.AttributeDefinition{
		attr("first name", api.KindString, false),
		attr("age", api.KindInt, false),
		attr("first name!", api.KindInt, true),
	}

	typ, err := NewCompiler(LastWriteWins).Compile("Person", attrs)
	require.NoError(t, err)
	assert.Equal(t, []string{"firstName", "age"}, typ.FieldNames())
	assert.Equal(t, Integer, typ.Field("firstName").Type.Kind, "later attribute wins")

	_, err = NewCompiler(RejectCollisions).Compile("Person", attrs)
	var collision *FieldCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "firstName", collision.Field)
}

func TestParseCollisionPolicy(t *testing.T) {
	p, err := ParseCollisionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, LastWriteWins, p)

	p, err = ParseCollisionPolicy("ERROR")
	require.NoError(t, err)
	assert.Equal(t, RejectCollisions, p)
	assert.Equal(t, "error", p.String())

	_, err = ParseCollisionPolicy("merge")
	assert.Error(t, err)
}

func TestSanitizedNames(t *testing.T) {
	typ, err := (&Compiler{}).Compile("my class!", []api.AttributeDefinition{
		attr("date of birth", api.KindString, false),
		attr("2nd address", api.KindNested, false, attr("street", api.KindString, false)),
	})
	require.NoError(t, err)
	assert.Equal(t, "myClass", typ.Name)
	assert.Equal(t, []string{"dateOfBirth", "Field2ndAddress"}, typ.FieldNames())
	assert.Equal(t, "Class2ndAddress", typ.Field("Field2ndAddress").Type.Name)
}
