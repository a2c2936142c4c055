// Package logmsg provides the util.log capability.
package logmsg

import (
	"context"
	"log/slog"

	"github.com/loomworks/loom/pkg/protocol"
)

// Node writes a message to the structured log and passes its input through.
type Node struct{}

func (n *Node) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	message, _ := input.Parameters["message"].(string)
	level, _ := input.Parameters["level"].(string)

	logger := input.Logger.With(slog.String("node_id", input.NodeID))

	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}

	return map[string]any{"message": message}, nil
}

// Factory creates util.log executors.
type Factory struct{}

// NewFactory creates the util.log factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &Node{}, nil
}

func (f *Factory) ID() string          { return "util.log" }
func (f *Factory) Name() string        { return "Log" }
func (f *Factory) Description() string { return "Writes a message to the structured log" }

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
		},
		"required": []string{"message"},
	}
}
