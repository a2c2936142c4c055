// Package arithmetic provides the math.* node capabilities.
package arithmetic

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/loom/pkg/protocol"
)

// Operation identifies one arithmetic capability.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Node applies one binary arithmetic operation. Operand "a" falls back to
// the node's main input when omitted, so chains like add -> multiply work
// without repeating upstream references.
type Node struct {
	op Operation
}

// Execute computes the operation over the resolved operands.
func (n *Node) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	a, err := operand(input, "a")
	if err != nil {
		return nil, err
	}

	b, err := operand(input, "b")
	if err != nil {
		return nil, err
	}

	switch n.op {
	case OpAdd:
		return a + b, nil
	case OpSubtract:
		return a - b, nil
	case OpMultiply:
		return a * b, nil
	case OpDivide:
		if b == 0 {
			return nil, errors.New("division by zero")
		}

		return a / b, nil
	default:
		return nil, fmt.Errorf("unknown arithmetic operation %q", n.op)
	}
}

func operand(input protocol.ExecutionInput, name string) (float64, error) {
	if raw, ok := input.Parameters[name]; ok {
		return toFloat(raw)
	}

	// Fall back to the upstream value on the main input port.
	if raw, ok := input.Inputs["main"]; ok {
		return toFloat(raw)
	}

	return 0, fmt.Errorf("missing operand %q", name)
}

func toFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	default:
		return 0, fmt.Errorf("value %v is not a number", value)
	}
}
