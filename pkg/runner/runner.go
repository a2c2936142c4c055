// Package runner drives workflow runs: it compiles definitions into plans,
// schedules ready nodes concurrently, and records results through the
// execution store.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/expression"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/plan"
	"github.com/loomworks/loom/pkg/registry"
)

const (
	// DefaultNodeTimeout bounds a single node dispatch unless the workflow
	// overrides it.
	DefaultNodeTimeout = 30 * time.Second

	// DefaultMaxParallel bounds concurrent dispatch within one run.
	DefaultMaxParallel = 4
)

// Config tunes run execution defaults. Zero values fall back to the package
// defaults.
type Config struct {
	NodeTimeout time.Duration
	MaxParallel int
}

// Runner owns live run coordinators. One coordinator drives one run; the
// runner tracks them so external callers can cancel or wait on a run.
type Runner struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	evaluator   *expression.Evaluator
	plans       *plan.Cache
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config

	mu     sync.Mutex
	active map[string]*coordinator // keyed tenantID/runID
}

func NewRunner(
	persistence persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) *Runner {
	if config.NodeTimeout <= 0 {
		config.NodeTimeout = DefaultNodeTimeout
	}

	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultMaxParallel
	}

	return &Runner{
		persistence: persistence,
		registry:    reg,
		evaluator:   expression.NewEvaluator(),
		plans:       plan.NewCache(),
		publisher:   publisher,
		logger:      logger.With("module", "runner"),
		tracer:      noop.NewTracerProvider().Tracer("runner"),
		config:      config,
	}
}

// WithTracer installs a real tracer. Without it spans are no-ops.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer

	return r
}

// Plans exposes the compiled-plan cache. Anything that mutates stored
// definitions must invalidate through this cache, or the runner keeps
// executing the plan compiled from the old graph.
func (r *Runner) Plans() *plan.Cache {
	return r.plans
}

// Start creates a run for the workflow and drives it on a background
// goroutine. The returned run is the pending record; callers observe
// progress through the execution store.
func (r *Runner) Start(ctx context.Context, workflow *models.Workflow, triggerInput map[string]any, actor string) (*models.Run, error) {
	coord, err := r.prepare(ctx, workflow, triggerInput, actor)
	if err != nil {
		return nil, err
	}

	go coord.drive(context.WithoutCancel(ctx))

	return coord.run, nil
}

// Execute drives a run to completion synchronously and returns the final
// run record.
func (r *Runner) Execute(ctx context.Context, workflow *models.Workflow, triggerInput map[string]any, actor string) (*models.Run, error) {
	coord, err := r.prepare(ctx, workflow, triggerInput, actor)
	if err != nil {
		return nil, err
	}

	coord.drive(ctx)

	return coord.run, nil
}

// Cancel requests cancellation of a live run. It reports whether the run was
// active; the coordinator finishes in-flight nodes before finalizing.
func (r *Runner) Cancel(tenantID, runID string) bool {
	r.mu.Lock()
	coord, ok := r.active[tenantID+"/"+runID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	coord.cancel()

	return true
}

// Wait blocks until the run's coordinator finishes. Runs unknown to this
// runner return immediately.
func (r *Runner) Wait(tenantID, runID string) {
	r.mu.Lock()
	coord, ok := r.active[tenantID+"/"+runID]
	r.mu.Unlock()

	if ok {
		<-coord.done
	}
}

func (r *Runner) prepare(ctx context.Context, workflow *models.Workflow, triggerInput map[string]any, actor string) (*coordinator, error) {
	compiled, err := r.plans.Get(workflow)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		TenantID:     workflow.TenantID,
		Status:       models.RunStatusPending,
		TriggerInput: triggerInput,
		NodeResults:  make(map[string]*models.NodeResult),
		StartedAt:    time.Now().UTC(),
	}

	if err := r.persistence.ExecutionRepository().CreateRun(ctx, run); err != nil {
		return nil, err
	}

	coord := newCoordinator(r, workflow, compiled, run, actor)

	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]*coordinator)
	}

	r.active[run.TenantID+"/"+run.ID] = coord
	r.mu.Unlock()

	return coord, nil
}

func (r *Runner) release(coord *coordinator) {
	r.mu.Lock()
	delete(r.active, coord.run.TenantID+"/"+coord.run.ID)
	r.mu.Unlock()
}

func (r *Runner) nodeTimeout(workflow *models.Workflow) time.Duration {
	if workflow.Settings != nil && workflow.Settings.TimeoutSeconds > 0 {
		return time.Duration(workflow.Settings.TimeoutSeconds) * time.Second
	}

	return r.config.NodeTimeout
}

func (r *Runner) maxParallel(workflow *models.Workflow) int {
	if workflow.Settings != nil && workflow.Settings.MaxParallel > 0 {
		return workflow.Settings.MaxParallel
	}

	return r.config.MaxParallel
}
