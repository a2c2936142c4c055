package arithmetic

import (
	"fmt"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factory creates arithmetic node executors for one operation.
type Factory struct {
	op Operation
}

// NewFactory creates a factory for the given operation.
func NewFactory(op Operation) protocol.NodeFactory {
	return &Factory{op: op}
}

// Factories returns one factory per arithmetic operation.
func Factories() []protocol.NodeFactory {
	return []protocol.NodeFactory{
		NewFactory(OpAdd),
		NewFactory(OpSubtract),
		NewFactory(OpMultiply),
		NewFactory(OpDivide),
	}
}

func (f *Factory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &Node{op: f.op}, nil
}

func (f *Factory) ID() string {
	return "math." + string(f.op)
}

func (f *Factory) Name() string {
	return "Math " + string(f.op)
}

func (f *Factory) Description() string {
	return fmt.Sprintf("Applies the %s operation to two numeric operands", f.op)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{
				"description": "First operand; falls back to the main input when omitted",
			},
			"b": map[string]any{
				"description": "Second operand",
			},
		},
	}
}
