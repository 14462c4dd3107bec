package llm

import (
	"encoding/json"
	"strings"
)

// Partial decodes the longest prefix of a truncated JSON object that can be
// completed by closing open strings and containers. It returns the completed
// text and the decoded object; ok is false when no prefix yields an object.
func Partial(s string) (text string, obj map[string]any, ok bool) {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		candidate, closable := closeJSON(s[:end])
		if !closable || !json.Valid([]byte(candidate)) {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
			return "", nil, false
		}
		return candidate, obj, true
	}
	return "", nil, false
}

// closeJSON appends the quotes and brackets needed to terminate prefix.
func closeJSON(prefix string) (string, bool) {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if escaped {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(stack) + 1)
	b.WriteString(prefix)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), true
}
