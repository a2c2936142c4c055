// Package emit provides the event.emit capability.
package emit

import (
	"context"
	"errors"

	"github.com/loomworks/loom/pkg/protocol"
)

// Node publishes an application event through the run's event sink.
// Emission is fire-and-forget: a broken bus never fails the node.
type Node struct{}

func (n *Node) Execute(ctx context.Context, input protocol.ExecutionInput) (any, error) {
	name, ok := input.Parameters["name"].(string)
	if !ok || name == "" {
		return nil, errors.New("missing required parameter 'name'")
	}

	payload, _ := input.Parameters["payload"].(map[string]any)

	if input.Events != nil {
		input.Events.Emit(ctx, name, payload)
	}

	return map[string]any{"emitted": name}, nil
}

// Factory creates event.emit executors.
type Factory struct{}

// NewFactory creates the event.emit factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &Node{}, nil
}

func (f *Factory) ID() string          { return "event.emit" }
func (f *Factory) Name() string        { return "Emit Event" }
func (f *Factory) Description() string { return "Publishes an application event through the event bus" }

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"payload": map[string]any{"type": "object"},
		},
		"required": []string{"name"},
	}
}
