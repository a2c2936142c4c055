package redis_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	redisstore "github.com/loomworks/loom/pkg/persistence/redis"
	"github.com/loomworks/loom/pkg/testutil"
)

var redisURL string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		panic(err)
	}

	redisURL = fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	code := m.Run()

	_ = container.Terminate(ctx)

	os.Exit(code)
}

func setupStore(t *testing.T) (*redisstore.Persistence, context.Context) {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := redisstore.NewPersistence(ctx, logger, redisURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close(ctx))
	})

	return store, ctx
}

// Tenants are randomized so tests sharing the container never collide on keys.
func newTenant() string {
	return "tenant-" + uuid.New().String()
}

func newRun(tenantID, workflowID string, startedAt time.Time) *models.Run {
	return &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Status:     models.RunStatusRunning,
		StartedAt:  startedAt,
	}
}

func TestPersistence_HealthCheck(t *testing.T) {
	store, ctx := setupStore(t)

	require.NoError(t, store.HealthCheck(ctx))
}

func TestWorkflowRepository_CRUD(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.WorkflowRepository()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithTenant(newTenant()),
		testutil.WithNodes(testutil.Node("n1", "math.add", map[string]any{"a": 1.0, "b": 2.0})),
	)

	require.NoError(t, repo.Create(ctx, workflow))

	loaded, err := repo.GetByID(ctx, workflow.TenantID, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "math.add", loaded.Nodes[0].Type)

	loaded.Name = "Renamed"
	loaded.Version = 2
	require.NoError(t, repo.Update(ctx, loaded))

	reloaded, err := repo.GetByID(ctx, workflow.TenantID, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Name)
	assert.Equal(t, 2, reloaded.Version)

	require.NoError(t, repo.Delete(ctx, workflow.TenantID, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.TenantID, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_CreateConflict(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.WorkflowRepository()

	workflow := testutil.CreateTestWorkflow(testutil.WithTenant(newTenant()))
	require.NoError(t, repo.Create(ctx, workflow))

	err := repo.Create(ctx, workflow)
	assert.ErrorIs(t, err, persistence.ErrWorkflowAlreadyExists)
}

func TestWorkflowRepository_UpdateMissing(t *testing.T) {
	store, ctx := setupStore(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithTenant(newTenant()))

	err := store.WorkflowRepository().Update(ctx, workflow)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_TenantIsolation(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.WorkflowRepository()

	tenantA := newTenant()
	tenantB := newTenant()

	acme := testutil.CreateTestWorkflow(testutil.WithTenant(tenantA))
	globex := testutil.CreateTestWorkflow(testutil.WithTenant(tenantB))

	require.NoError(t, repo.Create(ctx, acme))
	require.NoError(t, repo.Create(ctx, globex))

	_, err := repo.GetByID(ctx, tenantB, acme.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	list, err := repo.List(ctx, tenantA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, acme.ID, list[0].ID)
}

func TestExecutionRepository_RunLifecycle(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.ExecutionRepository()

	run := newRun(newTenant(), "wf-1", time.Now().UTC())
	require.NoError(t, repo.CreateRun(ctx, run))

	result := &models.NodeResult{
		NodeID:     "n1",
		Status:     models.NodeStatusSuccess,
		Output:     42.0,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendNodeResult(ctx, run.TenantID, run.ID, result))

	// A node result is written exactly once.
	err := repo.AppendNodeResult(ctx, run.TenantID, run.ID, result)
	assert.ErrorIs(t, err, persistence.ErrNodeResultExists)

	finished := time.Now().UTC()
	run.Status = models.RunStatusSuccess
	run.Output = 42.0
	run.FinishedAt = &finished
	require.NoError(t, repo.SaveRun(ctx, run))

	loaded, err := repo.GetRun(ctx, run.TenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, loaded.Status)
	assert.Equal(t, 42.0, loaded.Output)
	require.Contains(t, loaded.NodeResults, "n1")
	assert.Equal(t, 42.0, loaded.NodeResults["n1"].Output)

	// Terminal runs reject further writes.
	err = repo.SaveRun(ctx, run)
	assert.ErrorIs(t, err, persistence.ErrRunFinished)

	err = repo.AppendNodeResult(ctx, run.TenantID, run.ID, &models.NodeResult{NodeID: "n2"})
	assert.ErrorIs(t, err, persistence.ErrRunFinished)
}

func TestExecutionRepository_SaveRunPreservesNodeResults(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.ExecutionRepository()

	run := newRun(newTenant(), "wf-1", time.Now().UTC())
	require.NoError(t, repo.CreateRun(ctx, run))

	require.NoError(t, repo.AppendNodeResult(ctx, run.TenantID, run.ID, &models.NodeResult{
		NodeID:     "n1",
		Status:     models.NodeStatusSuccess,
		Output:     "kept",
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}))

	// A save from a copy that never saw the appended results must not
	// discard them.
	update := newRun(run.TenantID, "wf-1", run.StartedAt)
	update.ID = run.ID
	update.Status = models.RunStatusRunning
	update.Output = "partial"

	require.NoError(t, repo.SaveRun(ctx, update))

	loaded, err := repo.GetRun(ctx, run.TenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "partial", loaded.Output)
	require.Contains(t, loaded.NodeResults, "n1")
	assert.Equal(t, "kept", loaded.NodeResults["n1"].Output)
}

func TestExecutionRepository_ListRunsByWorkflow(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.ExecutionRepository()

	tenant := newTenant()
	base := time.Now().UTC()

	var ids []string

	for i := 0; i < 5; i++ {
		run := newRun(tenant, "wf-1", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	// A run for a different workflow never shows up.
	require.NoError(t, repo.CreateRun(ctx, newRun(tenant, "wf-other", base)))

	runs, err := repo.ListRunsByWorkflow(ctx, tenant, "wf-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 5)

	// Newest first.
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[0], runs[4].ID)

	page, err := repo.ListRunsByWorkflow(ctx, tenant, "wf-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}

func TestExecutionRepository_DeleteRunsByWorkflow(t *testing.T) {
	store, ctx := setupStore(t)
	repo := store.ExecutionRepository()

	tenant := newTenant()
	doomed := newRun(tenant, "wf-1", time.Now().UTC())
	survivor := newRun(tenant, "wf-2", time.Now().UTC())

	require.NoError(t, repo.CreateRun(ctx, doomed))
	require.NoError(t, repo.CreateRun(ctx, survivor))

	require.NoError(t, repo.DeleteRunsByWorkflow(ctx, tenant, "wf-1"))

	_, err := repo.GetRun(ctx, tenant, doomed.ID)
	assert.True(t, persistence.IsRunNotFound(err))

	kept, err := repo.GetRun(ctx, tenant, survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, kept.ID)
}
