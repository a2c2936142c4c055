package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// WorkflowRepository handles workflow definition files.
type WorkflowRepository struct {
	root string
	mu   *sync.Mutex
}

// NewWorkflowRepository creates a workflow repository under root.
func NewWorkflowRepository(root string, mu *sync.Mutex) *WorkflowRepository {
	return &WorkflowRepository{root: root, mu: mu}
}

func (r *WorkflowRepository) dir(tenantID string) string {
	return filepath.Join(r.root, tenantID, "workflows")
}

func (r *WorkflowRepository) path(tenantID, id string) string {
	return filepath.Join(r.dir(tenantID), id+".json")
}

// Create stores a new workflow definition.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Create", workflow.TenantID, workflow.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(workflow.TenantID, workflow.ID)); err == nil {
		return persistence.NewWorkflowError("Create", workflow.TenantID, workflow.ID,
			persistence.ErrWorkflowAlreadyExists)
	}

	return r.write(workflow)
}

// Update overwrites an existing workflow definition.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(workflow.TenantID, workflow.ID)); err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID,
			persistence.ErrWorkflowNotFound)
	}

	return r.write(workflow)
}

func (r *WorkflowRepository) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(r.dir(workflow.TenantID), 0750); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	raw, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	if err := os.WriteFile(r.path(workflow.TenantID, workflow.ID), raw, 0600); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// GetByID loads a workflow by (tenant, id).
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", tenantID, id, err)
	}

	raw, err := os.ReadFile(r.path(tenantID, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", tenantID, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// List returns every workflow owned by the tenant, newest first.
func (r *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	dir := os.DirFS(r.dir(tenantID))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, file := range files {
		id := file[:len(file)-len(".json")]

		workflow, err := r.GetByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// Delete removes a workflow definition.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", tenantID, id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(tenantID, id))
	if os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return err
}
