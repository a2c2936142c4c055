// Package redis provides a Redis-backed execution store. Workflows and runs
// are stored as JSON values, with per-tenant index sets and a per-workflow
// sorted set ordering runs by start time.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/pkg/persistence"
)

type Persistence struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to Redis and verifies the connection with a ping.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger = logger.With("module", "persistence", "provider", "redis")

	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(client, logger),
		executionRepo: NewExecutionRepository(client, logger),
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func workflowKey(tenantID, id string) string {
	return "loom:" + tenantID + ":workflow:" + id
}

func workflowIndexKey(tenantID string) string {
	return "loom:" + tenantID + ":workflows"
}

func runKey(tenantID, id string) string {
	return "loom:" + tenantID + ":run:" + id
}

func runIndexKey(tenantID, workflowID string) string {
	return "loom:" + tenantID + ":workflow:" + workflowID + ":runs"
}
