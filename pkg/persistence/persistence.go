// Package persistence provides the tenant-scoped execution store abstraction.
package persistence

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
)

// Persistence is the storage entry point. Every lookup is keyed by
// (tenantID, id); cross-tenant references are invalid by construction.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error)
	List(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ExecutionRepository stores runs and their per-node results. NodeResults are
// append-only within a run; a run that reached a terminal state is never
// written again, and runs are never deleted by the engine itself (a workflow
// delete cascades its history as an external retention decision).
type ExecutionRepository interface {
	CreateRun(ctx context.Context, run *models.Run) error

	// SaveRun persists the run's status, output, error, and finish time.
	// Stored node results are untouched: they enter the store only through
	// AppendNodeResult. Writing a terminal run again is ErrRunFinished.
	SaveRun(ctx context.Context, run *models.Run) error

	// AppendNodeResult records one node's result exactly once.
	AppendNodeResult(ctx context.Context, tenantID, runID string, result *models.NodeResult) error

	GetRun(ctx context.Context, tenantID, id string) (*models.Run, error)

	// ListRunsByWorkflow returns run history, newest first.
	ListRunsByWorkflow(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*models.Run, error)

	DeleteRunsByWorkflow(ctx context.Context, tenantID, workflowID string) error
}
