// Package template provides placeholder rendering for email subjects and bodies.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Render substitutes {{field}} placeholders in the input with values from the
// data map. Unknown placeholders render as empty strings; the message still
// goes out, it just carries a hole.
func Render(input string, data map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := lookup(data, field)
		if !ok || value == nil {
			return ""
		}

		return fmt.Sprintf("%v", value)
	})
}

// Fields returns the distinct placeholder names referenced by the input.
func Fields(input string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]struct{}, len(matches))
	fields := make([]string, 0, len(matches))

	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}

		seen[m[1]] = struct{}{}
		fields = append(fields, m[1])
	}

	return fields
}

// lookup resolves a possibly dotted field path against nested maps.
func lookup(data map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	current := any(data)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// MergeContexts layers field maps left to right; later maps win.
func MergeContexts(contexts ...map[string]any) map[string]any {
	merged := make(map[string]any)

	for _, ctx := range contexts {
		for k, v := range ctx {
			merged[k] = v
		}
	}

	return merged
}
