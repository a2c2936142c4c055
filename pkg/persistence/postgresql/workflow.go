package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

const uniqueViolation = "23505"

// WorkflowRepository stores workflow definitions as JSONB documents with
// indexed identity columns.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Create inserts a new workflow definition.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (tenant_id, id, name, description, version, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		workflow.TenantID, workflow.ID, workflow.Name, workflow.Description,
		workflow.Version, definition, workflow.CreatedAt, workflow.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return persistence.NewWorkflowError("Create", workflow.TenantID, workflow.ID,
			persistence.ErrWorkflowAlreadyExists)
	}

	return err
}

// Update overwrites an existing workflow definition.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows
		SET name = $3, description = $4, version = $5, definition = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2`,
		workflow.TenantID, workflow.ID, workflow.Name, workflow.Description,
		workflow.Version, definition, workflow.UpdatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID,
			persistence.ErrWorkflowNotFound)
	}

	return nil
}

// GetByID loads a workflow by (tenant, id).
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	var definition []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT definition FROM workflows WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&definition)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByID", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, err
	}

	var workflow models.Workflow
	if err := json.Unmarshal(definition, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// List returns every workflow owned by the tenant, newest first.
func (r *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT definition FROM workflows WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}

		var workflow models.Workflow
		if err := json.Unmarshal(definition, &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, rows.Err()
}

// Delete removes a workflow definition.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflows WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
