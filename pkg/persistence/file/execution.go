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

// ExecutionRepository handles run files.
type ExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

// NewExecutionRepository creates an execution repository under root.
func NewExecutionRepository(root string, mu *sync.Mutex) *ExecutionRepository {
	return &ExecutionRepository{root: root, mu: mu}
}

func (r *ExecutionRepository) dir(tenantID string) string {
	return filepath.Join(r.root, tenantID, "runs")
}

func (r *ExecutionRepository) path(tenantID, id string) string {
	return filepath.Join(r.dir(tenantID), id+".json")
}

// CreateRun stores a new run record.
func (r *ExecutionRepository) CreateRun(ctx context.Context, run *models.Run) error {
	if err := validateID(run.ID); err != nil {
		return persistence.NewRunError("CreateRun", run.TenantID, run.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(run)
}

// SaveRun persists the run's status, output, and error. Node results only
// ever enter the store through AppendNodeResult, so the stored map is kept
// as-is. Writing a terminal run again fails.
func (r *ExecutionRepository) SaveRun(ctx context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.read(run.TenantID, run.ID)
	if err != nil {
		return err
	}

	if existing.Status.Terminal() {
		return persistence.NewRunError("SaveRun", run.TenantID, run.ID, persistence.ErrRunFinished)
	}

	existing.Status = run.Status
	existing.Output = run.Output
	existing.Error = run.Error
	existing.FinishedAt = run.FinishedAt

	return r.write(existing)
}

// AppendNodeResult records one node result. A second result for the same
// node, or an append against a terminal run, is rejected.
func (r *ExecutionRepository) AppendNodeResult(ctx context.Context, tenantID, runID string, result *models.NodeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.read(tenantID, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID, persistence.ErrRunFinished)
	}

	if run.NodeResults == nil {
		run.NodeResults = make(map[string]*models.NodeResult)
	}

	if _, exists := run.NodeResults[result.NodeID]; exists {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID, persistence.ErrNodeResultExists)
	}

	run.NodeResults[result.NodeID] = result

	return r.write(run)
}

// GetRun loads a run by (tenant, id).
func (r *ExecutionRepository) GetRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewRunError("GetRun", tenantID, id, err)
	}

	return r.read(tenantID, id)
}

// ListRunsByWorkflow returns the workflow's run history, newest first.
func (r *ExecutionRepository) ListRunsByWorkflow(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*models.Run, error) {
	dir := os.DirFS(r.dir(tenantID))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(files))

	for _, file := range files {
		id := file[:len(file)-len(".json")]

		run, err := r.read(tenantID, id)
		if err != nil {
			return nil, err
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit <= 0 {
		limit = 50
	}

	if offset >= len(runs) {
		return []*models.Run{}, nil
	}

	end := offset + limit
	if end > len(runs) {
		end = len(runs)
	}

	return runs[offset:end], nil
}

// DeleteRunsByWorkflow removes a workflow's run history (cascade on
// workflow delete).
func (r *ExecutionRepository) DeleteRunsByWorkflow(ctx context.Context, tenantID, workflowID string) error {
	dir := os.DirFS(r.dir(tenantID))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list run files: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, file := range files {
		id := file[:len(file)-len(".json")]

		run, err := r.read(tenantID, id)
		if err != nil {
			return err
		}

		if run.WorkflowID != workflowID {
			continue
		}

		if err := os.Remove(r.path(tenantID, id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete run %s: %w", id, err)
		}
	}

	return nil
}

func (r *ExecutionRepository) read(tenantID, id string) (*models.Run, error) {
	raw, err := os.ReadFile(r.path(tenantID, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetRun", tenantID, id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	var run models.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

func (r *ExecutionRepository) write(run *models.Run) error {
	if err := os.MkdirAll(r.dir(run.TenantID), 0750); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	if err := os.WriteFile(r.path(run.TenantID, run.ID), raw, 0600); err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}

	return nil
}
