// Package persistence provides standardized error types for store operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found for the tenant.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same id already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrRunNotFound indicates a run was not found for the tenant.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished indicates a write was attempted against a terminal run.
	ErrRunFinished = errors.New("run already finished")

	// ErrNodeResultExists indicates a second result write for the same node.
	ErrNodeResultExists = errors.New("node result already recorded")
)

// WorkflowError wraps workflow store errors with operation context.
type WorkflowError struct {
	Op         string
	TenantID   string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s/%s: %v", e.Op, e.TenantID, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a workflow error with context.
func NewWorkflowError(op, tenantID, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, TenantID: tenantID, WorkflowID: workflowID, Err: err}
}

// RunError wraps run store errors with operation context.
type RunError struct {
	Op       string
	TenantID string
	RunID    string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed for run %s/%s: %v", e.Op, e.TenantID, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a run error with context.
func NewRunError(op, tenantID, runID string, err error) *RunError {
	return &RunError{Op: op, TenantID: tenantID, RunID: runID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
