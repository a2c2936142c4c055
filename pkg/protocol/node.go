// Package protocol defines the capability contracts for pluggable node backends.
package protocol

import (
	"context"
	"log/slog"
)

// ExecutionInput is everything a backend receives for one node dispatch:
// fully resolved parameters, merged input-port data, and the run-scoped
// collaborators a capability may use.
type ExecutionInput struct {
	RunID      string
	WorkflowID string
	TenantID   string
	NodeID     string

	// Parameters with every template fragment already resolved.
	Parameters map[string]any

	// Inputs maps input port name to the upstream output routed to it.
	Inputs map[string]any

	// Vars is the run-scoped mutable variable store shared by data nodes.
	Vars *VarStore

	Logger *slog.Logger

	// Events lets side-effecting nodes announce application events.
	// Emission is fire-and-forget and never fails the node.
	Events EventSink
}

// EventSink is the minimal event emission surface exposed to nodes.
type EventSink interface {
	Emit(ctx context.Context, name string, payload map[string]any)
}

// NodeExecutor is the single capability every backend implements: given
// resolved parameters and a cancellation signal, produce an output value or
// an error. Implementations must honor ctx cancellation for long work.
type NodeExecutor interface {
	Execute(ctx context.Context, input ExecutionInput) (any, error)
}

// NodeFactory creates executor instances and describes the node type.
type NodeFactory interface {
	// Create builds an executor for one dispatch from static node config.
	Create(config map[string]any) (NodeExecutor, error)

	// ID returns the namespaced type identifier, e.g. "math.add".
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for this node's parameters.
	Schema() map[string]any
}
