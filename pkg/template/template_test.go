package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"firstName": "Ana",
		"total":     42.5,
		"order": map[string]any{
			"id": "ord-9",
		},
		"missing": nil,
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "Hello {{firstName}}!",
			want:  "Hello Ana!",
		},
		{
			name:  "whitespace inside braces",
			input: "Hello {{ firstName }}!",
			want:  "Hello Ana!",
		},
		{
			name:  "numeric value",
			input: "Total: {{total}}",
			want:  "Total: 42.5",
		},
		{
			name:  "dotted path",
			input: "Order {{order.id}} confirmed",
			want:  "Order ord-9 confirmed",
		},
		{
			name:  "unknown placeholder renders empty",
			input: "Hi {{nickname}}, welcome",
			want:  "Hi , welcome",
		},
		{
			name:  "nil value renders empty",
			input: "[{{missing}}]",
			want:  "[]",
		},
		{
			name:  "no placeholders",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Render(tt.input, data))
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	fields := Fields("Hi {{firstName}}, order {{order.id}} for {{firstName}}")
	assert.Equal(t, []string{"firstName", "order.id"}, fields)

	assert.Empty(t, Fields("no placeholders here"))
}

func TestMergeContexts(t *testing.T) {
	t.Parallel()

	merged := MergeContexts(
		map[string]any{"a": 1, "b": 1},
		map[string]any{"b": 2, "c": 2},
	)

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 2}, merged)
}
