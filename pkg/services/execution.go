package services

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/runner"
)

// Execution starts runs and serves run history.
type Execution struct {
	persistence persistence.Persistence
	runner      *runner.Runner
}

// NewExecution creates a new execution service.
func NewExecution(p persistence.Persistence, r *runner.Runner) *Execution {
	return &Execution{persistence: p, runner: r}
}

// Start launches a run for the workflow asynchronously and returns the
// pending run record.
func (e *Execution) Start(ctx context.Context, tenantID, workflowID string, triggerInput map[string]any, actor string) (*models.Run, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	return e.runner.Start(ctx, workflow, triggerInput, actor)
}

// FetchRun loads a run by (tenant, id).
func (e *Execution) FetchRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	return e.persistence.ExecutionRepository().GetRun(ctx, tenantID, id)
}

// ListRuns returns the workflow's run history, newest first.
func (e *Execution) ListRuns(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*models.Run, error) {
	return e.persistence.ExecutionRepository().ListRunsByWorkflow(ctx, tenantID, workflowID, limit, offset)
}

// Cancel requests cancellation of a live run.
func (e *Execution) Cancel(tenantID, runID string) error {
	if !e.runner.Cancel(tenantID, runID) {
		return ErrRunNotActive
	}

	return nil
}
