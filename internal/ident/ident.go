// Package ident turns free-form labels typed into the graph editor into
// identifiers usable as schema field and type names.
package ident

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	FieldFallback = "UnnamedField"
	ClassFallback = "UnnamedClass"
	ModelFallback = "DynamicModel"

	FieldPrefix = "Field"
	ClassPrefix = "Class"
)

// Sanitize strips every rune that is neither a letter, a digit nor
// whitespace, then joins the remaining words in camelCase. The first word is
// kept verbatim; later words get an upper-case first rune. An empty result
// yields fallback, and a result that does not start with a letter is
// prefixed with prefix.
//
// Sanitize is total and idempotent: its output is always a fixed point.
func Sanitize(raw, fallback, prefix string) string {
	var kept strings.Builder
	kept.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			kept.WriteRune(r)
		}
	}

	words := strings.Fields(kept.String())
	if len(words) == 0 {
		return fallback
	}

	var out strings.Builder
	out.WriteString(words[0])
	for _, w := range words[1:] {
		out.WriteString(upperFirst(w))
	}

	s := out.String()
	if first, _ := utf8.DecodeRuneInString(s); !unicode.IsLetter(first) {
		s = prefix + s
	}
	return s
}

// Field sanitizes an attribute name.
func Field(raw string) string {
	return Sanitize(raw, FieldFallback, FieldPrefix)
}

// Class sanitizes a nested type name.
func Class(raw string) string {
	return Sanitize(raw, ClassFallback, ClassPrefix)
}

// TypeName is Class with an upper-case first rune, used for nested types
// derived from attribute names.
func TypeName(raw string) string {
	return upperFirst(Class(raw))
}

// Model sanitizes the name of a top-level composed schema.
func Model(raw string) string {
	return Sanitize(raw, ModelFallback, ClassPrefix)
}

func upperFirst(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + w[size:]
}
