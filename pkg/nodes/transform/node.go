// Package transform provides the transform.map structural-transform capability.
package transform

import (
	"context"
	"errors"

	"github.com/loomworks/loom/pkg/protocol"
)

// Node outputs its resolved "value" parameter. Template fragments inside the
// parameter tree are resolved by the scheduler before dispatch, so this node
// is the way to reshape upstream data into a new structure.
type Node struct{}

func (n *Node) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	value, ok := input.Parameters["value"]
	if !ok {
		return nil, errors.New("missing required parameter 'value'")
	}

	return value, nil
}

// Factory creates transform.map executors.
type Factory struct{}

// NewFactory creates the transform.map factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &Node{}, nil
}

func (f *Factory) ID() string   { return "transform.map" }
func (f *Factory) Name() string { return "Transform" }

func (f *Factory) Description() string {
	return "Outputs its resolved value parameter, reshaping upstream data"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"description": "Structure to output; may contain template fragments"},
		},
		"required": []string{"value"},
	}
}
