// Package script provides the script.expr capability: a sandboxed scripting
// backend running an expr program over the node's inputs and run variables.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/loomworks/loom/pkg/protocol"
)

// Node runs a pre-compiled expr program. The program sees `inputs` (port
// name -> upstream output) and `vars` (a snapshot of the run variable
// store); it cannot perform I/O or reach the host.
type Node struct {
	source  string
	program *vm.Program
}

// NewNode compiles the script once at creation.
func NewNode(config map[string]any) (*Node, error) {
	source, ok := config["code"].(string)
	if !ok || source == "" {
		return nil, errors.New("missing required parameter 'code'")
	}

	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return &Node{source: source, program: program}, nil
}

func (n *Node) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	env := map[string]any{
		"inputs": input.Inputs,
		"vars":   input.Vars.Snapshot(),
	}

	result, err := vm.Run(n.program, env)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}

	return result, nil
}

// Factory creates script.expr executors.
type Factory struct{}

// NewFactory creates the script.expr factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.NodeExecutor, error) {
	return NewNode(config)
}

func (f *Factory) ID() string   { return "script.expr" }
func (f *Factory) Name() string { return "Script" }

func (f *Factory) Description() string {
	return "Runs a sandboxed expr program over the node inputs and run variables"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{"type": "string"},
		},
		"required": []string{"code"},
	}
}
