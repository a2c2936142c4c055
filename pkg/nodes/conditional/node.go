// Package conditional provides the logic.if branch-evaluation capability.
package conditional

import (
	"context"
	"errors"

	"github.com/loomworks/loom/pkg/protocol"
)

// Node evaluates a boolean condition and outputs the matching branch value.
// The condition is normally a template fragment resolved before dispatch,
// e.g. "{{ steps.check.output > 3 }}".
type Node struct{}

// Execute selects then/else based on the resolved condition.
func (n *Node) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	raw, ok := input.Parameters["condition"]
	if !ok {
		return nil, errors.New("missing required parameter 'condition'")
	}

	condition, ok := raw.(bool)
	if !ok {
		return nil, errors.New("parameter 'condition' must resolve to a boolean")
	}

	if condition {
		if then, ok := input.Parameters["then"]; ok {
			return then, nil
		}

		return true, nil
	}

	if otherwise, ok := input.Parameters["else"]; ok {
		return otherwise, nil
	}

	return false, nil
}

// Factory creates logic.if executors.
type Factory struct{}

// NewFactory creates the logic.if factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &Node{}, nil
}

func (f *Factory) ID() string   { return "logic.if" }
func (f *Factory) Name() string { return "Conditional" }

func (f *Factory) Description() string {
	return "Evaluates a boolean condition and outputs the matching branch value"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{"description": "Boolean or template fragment resolving to one"},
			"then":      map[string]any{"description": "Output when the condition holds (default true)"},
			"else":      map[string]any{"description": "Output when it does not (default false)"},
		},
		"required": []string{"condition"},
	}
}
