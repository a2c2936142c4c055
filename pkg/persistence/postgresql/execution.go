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

// ExecutionRepository stores runs in a runs table and node results in an
// append-only node_results table keyed (tenant, run, node).
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// CreateRun inserts a new run record.
func (r *ExecutionRepository) CreateRun(ctx context.Context, run *models.Run) error {
	triggerInput, err := json.Marshal(run.TriggerInput)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger input: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (tenant_id, id, workflow_id, status, trigger_input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.TenantID, run.ID, run.WorkflowID, string(run.Status), triggerInput, run.StartedAt,
	)

	return err
}

// SaveRun updates the run document. Terminal runs are immutable.
func (r *ExecutionRepository) SaveRun(ctx context.Context, run *models.Run) error {
	output, err := json.Marshal(run.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal run output: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = $3, output = $4, error = $5, finished_at = $6
		WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('success', 'error')`,
		run.TenantID, run.ID, string(run.Status), output, run.Error, run.FinishedAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		exists, err := r.runExists(ctx, run.TenantID, run.ID)
		if err != nil {
			return err
		}

		if !exists {
			return persistence.NewRunError("SaveRun", run.TenantID, run.ID, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("SaveRun", run.TenantID, run.ID, persistence.ErrRunFinished)
	}

	return nil
}

// AppendNodeResult inserts one node result; the primary key enforces the
// write-once contract. Appends against a terminal run are rejected.
func (r *ExecutionRepository) AppendNodeResult(ctx context.Context, tenantID, runID string, result *models.NodeResult) error {
	var status string

	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM runs WHERE tenant_id = $1 AND id = $2`,
		tenantID, runID,
	).Scan(&status)

	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID, persistence.ErrRunNotFound)
	}

	if err != nil {
		return err
	}

	if models.RunStatus(status).Terminal() {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID, persistence.ErrRunFinished)
	}

	output, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal node output: %w", err)
	}

	var failure []byte

	if result.Failure != nil {
		failure, err = json.Marshal(result.Failure)
		if err != nil {
			return fmt.Errorf("failed to marshal node failure: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO node_results (tenant_id, run_id, node_id, status, output, failure, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tenantID, runID, result.NodeID, string(result.Status), output, failure,
		result.StartedAt, result.FinishedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID, persistence.ErrNodeResultExists)
	}

	return err
}

// GetRun loads a run with its node results.
func (r *ExecutionRepository) GetRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	run, err := r.scanRun(r.db.QueryRowContext(ctx, `
		SELECT tenant_id, id, workflow_id, status, trigger_input, output, error, started_at, finished_at
		FROM runs WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError("GetRun", tenantID, id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, err
	}

	if err := r.loadNodeResults(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// ListRunsByWorkflow returns the workflow's run history, newest first.
func (r *ExecutionRepository) ListRunsByWorkflow(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, id, workflow_id, status, trigger_input, output, error, started_at, finished_at
		FROM runs
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4`,
		tenantID, workflowID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}

		if err := r.loadNodeResults(ctx, run); err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DeleteRunsByWorkflow removes a workflow's run history.
func (r *ExecutionRepository) DeleteRunsByWorkflow(ctx context.Context, tenantID, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM node_results
		WHERE tenant_id = $1 AND run_id IN (
			SELECT id FROM runs WHERE tenant_id = $1 AND workflow_id = $2
		)`,
		tenantID, workflowID,
	)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM runs WHERE tenant_id = $1 AND workflow_id = $2`,
		tenantID, workflowID,
	)

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ExecutionRepository) scanRun(row rowScanner) (*models.Run, error) {
	var (
		run          models.Run
		status       string
		triggerInput []byte
		output       []byte
		finishedAt   sql.NullTime
	)

	err := row.Scan(&run.TenantID, &run.ID, &run.WorkflowID, &status,
		&triggerInput, &output, &run.Error, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)

	if len(triggerInput) > 0 {
		if err := json.Unmarshal(triggerInput, &run.TriggerInput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger input: %w", err)
		}
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &run.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run output: %w", err)
		}
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

func (r *ExecutionRepository) loadNodeResults(ctx context.Context, run *models.Run) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, status, output, failure, started_at, finished_at
		FROM node_results WHERE tenant_id = $1 AND run_id = $2`,
		run.TenantID, run.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	run.NodeResults = make(map[string]*models.NodeResult)

	for rows.Next() {
		var (
			result  models.NodeResult
			status  string
			output  []byte
			failure []byte
		)

		err := rows.Scan(&result.NodeID, &status, &output, &failure,
			&result.StartedAt, &result.FinishedAt)
		if err != nil {
			return err
		}

		result.Status = models.NodeStatus(status)

		if len(output) > 0 {
			if err := json.Unmarshal(output, &result.Output); err != nil {
				return fmt.Errorf("failed to unmarshal node output: %w", err)
			}
		}

		if len(failure) > 0 {
			if err := json.Unmarshal(failure, &result.Failure); err != nil {
				return fmt.Errorf("failed to unmarshal node failure: %w", err)
			}
		}

		run.NodeResults[result.NodeID] = &result
	}

	return rows.Err()
}

func (r *ExecutionRepository) runExists(ctx context.Context, tenantID, id string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM runs WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)

	return exists, err
}
