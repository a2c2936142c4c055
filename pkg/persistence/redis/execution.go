package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

type ExecutionRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewExecutionRepository(client redis.UniversalClient, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{client: client, logger: logger}
}

// CreateRun stores a new run and adds it to the workflow's history, scored by
// start time so listing reads newest first.
func (r *ExecutionRepository) CreateRun(ctx context.Context, run *models.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(run.TenantID, run.ID), data, 0)
	pipe.ZAdd(ctx, runIndexKey(run.TenantID, run.WorkflowID), redis.Z{
		Score:  float64(run.StartedAt.UnixNano()),
		Member: run.ID,
	})

	_, err = pipe.Exec(ctx)

	return err
}

// SaveRun persists the run's status, output, and error. Node results only
// ever enter the store through AppendNodeResult, so the stored map is kept
// as-is. Terminal runs are immutable.
func (r *ExecutionRepository) SaveRun(ctx context.Context, run *models.Run) error {
	stored, err := r.GetRun(ctx, run.TenantID, run.ID)
	if err != nil {
		return err
	}

	if stored.Status.Terminal() {
		return persistence.NewRunError("SaveRun", run.TenantID, run.ID,
			persistence.ErrRunFinished)
	}

	stored.Status = run.Status
	stored.Output = run.Output
	stored.Error = run.Error
	stored.FinishedAt = run.FinishedAt

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return r.client.Set(ctx, runKey(run.TenantID, run.ID), data, 0).Err()
}

// AppendNodeResult records one node result. A second result for the same
// node, or an append against a terminal run, is rejected.
func (r *ExecutionRepository) AppendNodeResult(ctx context.Context, tenantID, runID string, result *models.NodeResult) error {
	run, err := r.GetRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID,
			persistence.ErrRunFinished)
	}

	if run.NodeResults == nil {
		run.NodeResults = make(map[string]*models.NodeResult)
	}

	if _, exists := run.NodeResults[result.NodeID]; exists {
		return persistence.NewRunError("AppendNodeResult", tenantID, runID,
			persistence.ErrNodeResultExists)
	}

	run.NodeResults[result.NodeID] = result

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return r.client.Set(ctx, runKey(tenantID, runID), data, 0).Err()
}

// GetRun loads a run by (tenant, id).
func (r *ExecutionRepository) GetRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	data, err := r.client.Get(ctx, runKey(tenantID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewRunError("GetRun", tenantID, id,
			persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, err
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// ListRunsByWorkflow returns the workflow's run history, newest first.
func (r *ExecutionRepository) ListRunsByWorkflow(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := r.client.ZRevRange(ctx, runIndexKey(tenantID, workflowID),
		int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]*models.Run, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetRun(ctx, tenantID, id)
		if persistence.IsRunNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// DeleteRunsByWorkflow removes a workflow's run history.
func (r *ExecutionRepository) DeleteRunsByWorkflow(ctx context.Context, tenantID, workflowID string) error {
	index := runIndexKey(tenantID, workflowID)

	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, runKey(tenantID, id))
	}

	keys = append(keys, index)

	return r.client.Del(ctx, keys...).Err()
}
