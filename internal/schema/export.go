package schema

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
	"mvdan.cc/gofumpt/format"
)

type yamlType struct {
	Name        string      `yaml:"name,omitempty"`
	Type        Kind        `yaml:"type"`
	Description string      `yaml:"description,omitempty"`
	Fields      []yamlField `yaml:"fields,omitempty"`
	Items       *yamlType   `yaml:"items,omitempty"`
}

type yamlField struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Required    bool       `yaml:"required"`
	Nullable    bool       `yaml:"nullable,omitempty"`
	Default     *yaml.Node `yaml:"default,omitempty"`
	Schema      yamlType   `yaml:"schema"`
}

// YAML renders t as a readable, order-preserving document.
func (t *Type) YAML() ([]byte, error) {
	doc, err := t.yamlType()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Type) yamlType() (yamlType, error) {
	out := yamlType{Name: t.Name, Type: t.Kind, Description: t.Description}
	if t.Items != nil {
		items, err := t.Items.yamlType()
		if err != nil {
			return out, err
		}
		out.Items = &items
	}
	for _, f := range t.Fields {
		sub, err := f.Type.yamlType()
		if err != nil {
			return out, err
		}
		yf := yamlField{
			Name:        f.Name,
			Description: f.Description,
			Required:    f.Required,
			Nullable:    f.Nullable,
			Schema:      sub,
		}
		switch {
		case f.HasDefault && f.Default == nil:
			yf.Default = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		case f.HasDefault:
			yf.Default = &yaml.Node{}
			if err := yf.Default.Encode(f.Default); err != nil {
				return out, fmt.Errorf("field %s default: %w", f.Name, err)
			}
		}
		out.Fields = append(out.Fields, yf)
	}
	return out, nil
}

// GoSource renders t and every nested object type as Go struct declarations
// in package pkg, formatted with gofumpt.
func (t *Type) GoSource(pkg string) ([]byte, error) {
	g := &goGen{names: map[*Type]string{}, taken: map[string]bool{}}
	g.collect(t)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by attrgraph. DO NOT EDIT.\n\npackage %s\n", pkg)
	for _, obj := range g.order {
		buf.WriteString("\n")
		if obj.Description != "" {
			writeComment(&buf, "", g.names[obj]+" "+obj.Description)
		}
		fmt.Fprintf(&buf, "type %s struct {\n", g.names[obj])
		used := map[string]bool{}
		for _, f := range obj.Fields {
			name := claim(used, exported(f.Name))
			tag := f.Name
			if !f.Required {
				tag += ",omitempty"
			}
			if f.Description != "" {
				writeComment(&buf, "\t", f.Description)
			}
			fmt.Fprintf(&buf, "\t%s %s `json:%q`\n", name, g.goType(f), tag)
		}
		buf.WriteString("}\n")
	}

	out, err := format.Source(buf.Bytes(), format.Options{})
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return out, nil
}

type goGen struct {
	names map[*Type]string
	taken map[string]bool
	order []*Type
}

// collect assigns a unique Go name to every object type, parents first.
func (g *goGen) collect(t *Type) {
	switch t.Kind {
	case Array:
		g.collect(t.Items)
	case Object:
		if _, seen := g.names[t]; seen {
			return
		}
		name := exported(t.Name)
		if name == "" {
			name = "Object"
		}
		g.names[t] = claim(g.taken, name)
		g.order = append(g.order, t)
		for _, f := range t.Fields {
			g.collect(f.Type)
		}
	}
}

func (g *goGen) goType(f *Field) string {
	base := g.baseType(f.Type)
	if f.Nullable && f.Type.Kind != Array {
		return "*" + base
	}
	return base
}

func (g *goGen) baseType(t *Type) string {
	switch t.Kind {
	case String:
		return "string"
	case Integer:
		return "int64"
	case Number:
		return "float64"
	case Boolean:
		return "bool"
	case Array:
		return "[]" + g.baseType(t.Items)
	case Object:
		return g.names[t]
	}
	return "any"
}

// claim returns base, or base followed by the smallest free numeric suffix,
// and marks the result as used.
func claim(used map[string]bool, base string) string {
	name := base
	for n := 2; used[name]; n++ {
		name = base + strconv.Itoa(n)
	}
	used[name] = true
	return name
}

// writeComment writes text as line comments, one "//" per line, so that no
// line of text can escape into code.
func writeComment(buf *bytes.Buffer, indent, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, line := range strings.Split(text, "\n") {
		buf.WriteString(indent)
		buf.WriteString(strings.TrimRight("// "+line, " "))
		buf.WriteString("\n")
	}
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
