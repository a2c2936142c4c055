package models

import "time"

// RunStatus represents the lifecycle state of a run. Terminal states are
// immutable once reached.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// NodeStatus is the status of a single node result.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// FailureKind classifies node failures so callers can tell retryable
// infrastructure problems from deterministic logic failures.
type FailureKind string

const (
	FailureKindEvaluation FailureKind = "evaluation" // expression referenced missing data
	FailureKindDispatch   FailureKind = "dispatch"   // unknown node type
	FailureKindBackend    FailureKind = "backend"    // the capability itself reported failure
	FailureKindTimeout    FailureKind = "timeout"    // backend exceeded its budget
	FailureKindCancelled  FailureKind = "cancelled"  // run was cancelled externally
)

// NodeFailure is the typed error description recorded for a failed node.
type NodeFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// NodeResult records the outcome of one node inside one run. It is written
// exactly once per node per run.
type NodeResult struct {
	NodeID     string       `json:"node_id"`
	Status     NodeStatus   `json:"status"`
	Output     any          `json:"output,omitempty"`
	Failure    *NodeFailure `json:"failure,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Run is one invocation of a workflow, tracked independently with its own
// per-node results. Only the coordinator driving the run mutates it; a run
// that reached a terminal state is never written again.
type Run struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id" validate:"required"`
	TenantID     string                 `json:"tenant_id"   validate:"required"`
	Status       RunStatus              `json:"status"`
	TriggerInput map[string]any         `json:"trigger_input,omitempty"`
	NodeResults  map[string]*NodeResult `json:"node_results"`
	Output       any                    `json:"output,omitempty"`
	Error        string                 `json:"error,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}
