package conditional_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/nodes/conditional"
	"github.com/loomworks/loom/pkg/protocol"
)

func execute(t *testing.T, params map[string]any) (any, error) {
	t.Helper()

	node, err := conditional.NewFactory().Create(params)
	require.NoError(t, err)

	return node.Execute(context.Background(), protocol.ExecutionInput{Parameters: params})
}

func TestConditional_Branches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   map[string]any
		expected any
	}{
		{
			name:     "true with then",
			params:   map[string]any{"condition": true, "then": "yes", "else": "no"},
			expected: "yes",
		},
		{
			name:     "false with else",
			params:   map[string]any{"condition": false, "then": "yes", "else": "no"},
			expected: "no",
		},
		{
			name:     "true without branches",
			params:   map[string]any{"condition": true},
			expected: true,
		},
		{
			name:     "false without branches",
			params:   map[string]any{"condition": false},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			output, err := execute(t, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, output)
		})
	}
}

func TestConditional_MissingCondition(t *testing.T) {
	t.Parallel()

	_, err := execute(t, map[string]any{"then": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition")
}

func TestConditional_NonBooleanCondition(t *testing.T) {
	t.Parallel()

	_, err := execute(t, map[string]any{"condition": "maybe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}
