// Package web provides the HTTP surface for workflow management and
// execution. Every route is tenant-scoped by path segment.
package web

import (
	"github.com/loomworks/loom/pkg/models"
)

// ExecuteRequest is the body for starting a run. Input becomes the run's
// trigger payload.
type ExecuteRequest struct {
	Input map[string]any `json:"input,omitempty"`
	Actor string         `json:"actor,omitempty"`
}

// ExecuteResponse acknowledges an accepted run.
type ExecuteResponse struct {
	RunID      string           `json:"run_id"`
	WorkflowID string           `json:"workflow_id"`
	Status     models.RunStatus `json:"status"`
}

// ValidateResponse reports the outcome of a dry-run compile.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// NodeTypeResponse describes one registered capability.
type NodeTypeResponse struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}
