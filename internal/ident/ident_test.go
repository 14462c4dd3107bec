package ident

import (
	"testing"
	"testing/quick"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single word", "age", "age"},
		{"keeps first word case", "First name", "FirstName"},
		{"camel joins", "date of birth", "dateOfBirth"},
		{"strips symbols", "e-mail address!", "emailAddress"},
		{"underscore is stripped", "user_id", "userid"},
		{"collapses whitespace", "  home \t city\n", "homeCity"},
		{"leading digit", "2nd line", "Field2ndLine"},
		{"empty", "", "UnnamedField"},
		{"only symbols", "#$%^", "UnnamedField"},
		{"unicode letters", "café owner", "caféOwner"},
		{"later word keeps tail", "api URL", "apiURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Field(tt.raw))
		})
	}
}

func TestFallbacksAndPrefixes(t *testing.T) {
	assert.Equal(t, ClassFallback, Class("!!"))
	assert.Equal(t, ModelFallback, Model(""))
	assert.Equal(t, "Class42", Class("42"))
	assert.Equal(t, "Class3dModel", Model("3d model"))
}

func TestSanitizeIdempotent(t *testing.T) {
	for _, fn := range []func(string) string{Field, Class, Model} {
		f := func(s string) bool {
			once := fn(s)
			return fn(once) == once
		}
		assert.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
	}

	for _, s := range []string{"", " ", "9", "__", "a b c", "Ω mega", "x́y"} {
		once := Field(s)
		assert.Equal(t, once, Field(once), "input %q", s)
	}
}

func TestSanitizeTotal(t *testing.T) {
	f := func(s string) bool {
		out := Field(s)
		if out == "" {
			return false
		}
		for i, r := range out {
			if i == 0 && !unicode.IsLetter(r) {
				return false
			}
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
		return true
	}
	assert.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}
