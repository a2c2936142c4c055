// Package models defines the core domain models for node-based workflow execution.
package models

import "time"

// Workflow is a declarative graph of computation nodes and connections,
// owned by a single tenant. A workflow referenced by a run is never mutated
// in place; updates bump Version instead.
type Workflow struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"   validate:"required"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description"`
	Version     int               `json:"version"`
	Nodes       []*Node           `json:"nodes"`
	Connections []*Connection     `json:"connections"`
	Settings    *WorkflowSettings `json:"settings,omitempty"`
	Variables   map[string]any    `json:"variables,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WorkflowSettings holds free-form execution settings for a workflow.
type WorkflowSettings struct {
	Timezone       string `json:"timezone,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // per-node dispatch budget
	MaxParallel    int    `json:"max_parallel,omitempty"`    // fan-out limit inside one run
	OutputNodeID   string `json:"output_node_id,omitempty"`  // which terminal node feeds the run output
	Schedule       string `json:"schedule,omitempty"`        // cron expression for periodic execution
	RetainRuns     int    `json:"retain_runs,omitempty"`     // advisory retention, enforced externally
}

// NodeByID returns the node with the given id, or nil if no such node exists.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
