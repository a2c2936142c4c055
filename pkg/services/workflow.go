package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/plan"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/schedule"
)

// Workflow is the definition service. Every write compiles the graph first:
// a definition that fails compilation is never stored, so stored workflows
// are always runnable.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	plans       *plan.Cache
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, reg *registry.Registry, plans *plan.Cache) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    reg,
		plans:       plans,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates, compiles, and stores a new workflow definition.
func (w *Workflow) Create(ctx context.Context, tenantID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.TenantID = tenantID
	workflow.Version = 1

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.Validate(ctx, workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Create(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Update replaces an existing definition, bumping its version so cached
// plans compiled from the old graph are never reused.
func (w *Workflow) Update(ctx context.Context, tenantID, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.TenantID = tenantID
	workflow.Version = existing.Version + 1
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.Validate(ctx, workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow); err != nil {
		return nil, err
	}

	w.plans.Invalidate(tenantID, id)

	return workflow, nil
}

// FetchByID loads a workflow by (tenant, id).
func (w *Workflow) FetchByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, tenantID, id)
}

// List returns all of the tenant's workflows.
func (w *Workflow) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().List(ctx, tenantID)
}

// Delete removes a workflow and cascades its run history.
func (w *Workflow) Delete(ctx context.Context, tenantID, id string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, tenantID, id); err != nil {
		return err
	}

	w.plans.Invalidate(tenantID, id)

	if err := w.persistence.ExecutionRepository().DeleteRunsByWorkflow(ctx, tenantID, id); err != nil {
		return fmt.Errorf("failed to delete run history for workflow %s: %w", id, err)
	}

	return nil
}

// Validate runs the full definition check without writing anything: struct
// validation, graph compilation, node parameter schemas, and the schedule
// expression when one is set. The returned error is a *plan.DefinitionError
// for structural problems.
func (w *Workflow) Validate(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if err := w.validator.Struct(workflow); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	if _, err := plan.Compile(workflow); err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		if err := w.registry.ValidateParameters(node.Type, node.Parameters); err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
	}

	if workflow.Settings != nil && workflow.Settings.Schedule != "" {
		if err := schedule.Validate(workflow.Settings.Schedule); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
	}

	return nil
}
