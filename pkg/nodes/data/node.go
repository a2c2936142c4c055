// Package data provides the data.* capabilities over the run variable store.
package data

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/loomworks/loom/pkg/protocol"
)

// ReadNode reads a value from the run variable store (data.read).
type ReadNode struct{}

func (n *ReadNode) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	key, ok := input.Parameters["key"].(string)
	if !ok || key == "" {
		return nil, errors.New("missing required parameter 'key'")
	}

	value, found := input.Vars.Get(key)
	if !found {
		return nil, fmt.Errorf("variable %q not set", key)
	}

	return value, nil
}

// WriteNode writes (or updates) a value in the run variable store
// (data.write). The written value is also the node output, so downstream
// nodes can chain off the write.
type WriteNode struct{}

func (n *WriteNode) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	key, ok := input.Parameters["key"].(string)
	if !ok || key == "" {
		return nil, errors.New("missing required parameter 'key'")
	}

	value, ok := input.Parameters["value"]
	if !ok {
		value = input.Inputs["main"]
	}

	input.Vars.Set(key, value)

	return value, nil
}

// CountNode counts the elements of a collection (data.count). The collection
// comes from the "items" parameter or, when absent, the main input.
type CountNode struct{}

func (n *CountNode) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	items, ok := input.Parameters["items"]
	if !ok {
		items = input.Inputs["main"]
	}

	switch typed := items.(type) {
	case []any:
		return len(typed), nil
	case map[string]any:
		return len(typed), nil
	case string:
		return len(typed), nil
	case nil:
		return 0, nil
	default:
		return nil, fmt.Errorf("cannot count value of type %T", items)
	}
}

// FilterNode keeps the elements of a list matching a predicate (data.filter).
// The predicate is an expr expression over the variable `item`.
type FilterNode struct {
	predicate string

	mu      sync.Mutex
	program *vm.Program
}

func (n *FilterNode) Execute(_ context.Context, input protocol.ExecutionInput) (any, error) {
	items, ok := input.Parameters["items"]
	if !ok {
		items = input.Inputs["main"]
	}

	list, ok := items.([]any)
	if !ok {
		return nil, fmt.Errorf("data.filter expects a list, got %T", items)
	}

	program, err := n.compiled()
	if err != nil {
		return nil, err
	}

	kept := make([]any, 0, len(list))

	for _, item := range list {
		result, err := vm.Run(program, map[string]any{"item": item})
		if err != nil {
			return nil, fmt.Errorf("predicate failed: %w", err)
		}

		matched, ok := result.(bool)
		if !ok {
			return nil, errors.New("predicate must evaluate to a boolean")
		}

		if matched {
			kept = append(kept, item)
		}
	}

	return kept, nil
}

func (n *FilterNode) compiled() (*vm.Program, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.program != nil {
		return n.program, nil
	}

	// Untyped compile: `item` can be a number, map, or string depending on
	// the list being filtered.
	program, err := expr.Compile(n.predicate, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid predicate %q: %w", n.predicate, err)
	}

	n.program = program

	return program, nil
}
