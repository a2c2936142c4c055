package data

import (
	"errors"

	"github.com/loomworks/loom/pkg/protocol"
)

// Factories returns one factory per data capability.
func Factories() []protocol.NodeFactory {
	return []protocol.NodeFactory{
		&readFactory{},
		&writeFactory{},
		&countFactory{},
		&filterFactory{},
	}
}

type readFactory struct{}

func (f *readFactory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &ReadNode{}, nil
}

func (f *readFactory) ID() string          { return "data.read" }
func (f *readFactory) Name() string        { return "Data Read" }
func (f *readFactory) Description() string { return "Reads a value from the run variable store" }

func (f *readFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{"type": "string"},
		},
		"required": []string{"key"},
	}
}

type writeFactory struct{}

func (f *writeFactory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &WriteNode{}, nil
}

func (f *writeFactory) ID() string   { return "data.write" }
func (f *writeFactory) Name() string { return "Data Write" }

func (f *writeFactory) Description() string {
	return "Writes or updates a value in the run variable store"
}

func (f *writeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":   map[string]any{"type": "string"},
			"value": map[string]any{"description": "Value to store; falls back to the main input"},
		},
		"required": []string{"key"},
	}
}

type countFactory struct{}

func (f *countFactory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &CountNode{}, nil
}

func (f *countFactory) ID() string          { return "data.count" }
func (f *countFactory) Name() string        { return "Data Count" }
func (f *countFactory) Description() string { return "Counts the elements of a collection" }

func (f *countFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"description": "Collection to count; falls back to the main input"},
		},
	}
}

type filterFactory struct{}

func (f *filterFactory) Create(config map[string]any) (protocol.NodeExecutor, error) {
	predicate, ok := config["where"].(string)
	if !ok || predicate == "" {
		return nil, errors.New("missing required parameter 'where'")
	}

	return &FilterNode{predicate: predicate}, nil
}

func (f *filterFactory) ID() string   { return "data.filter" }
func (f *filterFactory) Name() string { return "Data Filter" }

func (f *filterFactory) Description() string {
	return "Keeps the elements of a list matching an expression predicate over `item`"
}

func (f *filterFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"description": "List to filter; falls back to the main input"},
			"where": map[string]any{"type": "string"},
		},
		"required": []string{"where"},
	}
}
