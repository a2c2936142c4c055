package arithmetic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/nodes/arithmetic"
	"github.com/loomworks/loom/pkg/protocol"
)

func execute(t *testing.T, op arithmetic.Operation, params, inputs map[string]any) (any, error) {
	t.Helper()

	factory := arithmetic.NewFactory(op)

	node, err := factory.Create(params)
	require.NoError(t, err)

	return node.Execute(context.Background(), protocol.ExecutionInput{
		Parameters: params,
		Inputs:     inputs,
	})
}

func TestArithmetic_Operations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op       arithmetic.Operation
		a, b     float64
		expected float64
	}{
		{arithmetic.OpAdd, 5, 3, 8},
		{arithmetic.OpSubtract, 5, 3, 2},
		{arithmetic.OpMultiply, 8, 2, 16},
		{arithmetic.OpDivide, 8, 2, 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			t.Parallel()

			output, err := execute(t, tt.op,
				map[string]any{"a": tt.a, "b": tt.b}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, output)
		})
	}
}

func TestArithmetic_FallsBackToMainInput(t *testing.T) {
	t.Parallel()

	// Chained shape: the upstream output feeds "a", the node supplies "b".
	output, err := execute(t, arithmetic.OpMultiply,
		map[string]any{"b": 2.0},
		map[string]any{"main": 8.0})
	require.NoError(t, err)
	assert.Equal(t, 16.0, output)
}

func TestArithmetic_IntOperandsCoerce(t *testing.T) {
	t.Parallel()

	output, err := execute(t, arithmetic.OpAdd,
		map[string]any{"a": 5, "b": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, output)
}

func TestArithmetic_DivisionByZero(t *testing.T) {
	t.Parallel()

	_, err := execute(t, arithmetic.OpDivide,
		map[string]any{"a": 1.0, "b": 0.0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestArithmetic_MissingOperand(t *testing.T) {
	t.Parallel()

	_, err := execute(t, arithmetic.OpAdd, map[string]any{"a": 1.0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing operand")
}

func TestArithmetic_NonNumericOperand(t *testing.T) {
	t.Parallel()

	_, err := execute(t, arithmetic.OpAdd,
		map[string]any{"a": "not a number", "b": 1.0}, nil)
	require.Error(t, err)
}
