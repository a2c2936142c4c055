package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loomworks/loom/pkg/expression"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/otelhelper"
	"github.com/loomworks/loom/pkg/plan"
	"github.com/loomworks/loom/pkg/protocol"
)

// coordinator drives a single run. It owns the run record exclusively: node
// results are appended exactly once, and the run document is written only
// from the drive loop.
type coordinator struct {
	runner   *Runner
	workflow *models.Workflow
	plan     *plan.Plan
	run      *models.Run
	actor    string
	vars     *protocol.VarStore
	emitter  *emitter
	logger   *slog.Logger

	maxParallel int
	nodeTimeout time.Duration

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}

	mu        sync.Mutex
	results   map[string]*models.NodeResult
	attempted map[string]bool
}

func newCoordinator(r *Runner, workflow *models.Workflow, compiled *plan.Plan, run *models.Run, actor string) *coordinator {
	logger := r.logger.With(
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID,
		"run_id", run.ID,
	)

	return &coordinator{
		runner:      r,
		workflow:    workflow,
		plan:        compiled,
		run:         run,
		actor:       actor,
		vars:        protocol.NewVarStore(workflow.Variables),
		emitter:     newEmitter(r.publisher, run, logger),
		logger:      logger,
		maxParallel: r.maxParallel(workflow),
		nodeTimeout: r.nodeTimeout(workflow),
		cancelCh:    make(chan struct{}),
		done:        make(chan struct{}),
		results:     make(map[string]*models.NodeResult),
		attempted:   make(map[string]bool),
	}
}

// cancel requests cooperative cancellation. In-flight nodes observe it via
// their contexts; nothing new is dispatched afterwards.
func (c *coordinator) cancel() {
	c.cancelOnce.Do(func() { close(c.cancelCh) })
}

func (c *coordinator) drive(parent context.Context) {
	defer close(c.done)
	defer c.runner.release(c)

	ctx, stop := context.WithCancel(parent)
	defer stop()

	go func() {
		select {
		case <-c.cancelCh:
			stop()
		case <-ctx.Done():
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, c.runner.tracer, "run",
		attribute.String(otelhelper.TenantIDKey, c.run.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, c.run.WorkflowID),
		attribute.String(otelhelper.RunIDKey, c.run.ID),
	)
	defer span.End()

	c.logger.InfoContext(ctx, "Starting run", "nodes", len(c.plan.Order))

	c.run.Status = models.RunStatusRunning
	c.saveRun(ctx)
	c.emitter.runStarted(ctx)

	for ctx.Err() == nil {
		ready := c.readySet()
		if len(ready) == 0 {
			break
		}

		c.dispatchWave(ctx, ready)
	}

	c.finalize(ctx)
}

// readySet returns the unattempted nodes whose upstream dependencies all
// succeeded, in plan order.
func (c *coordinator) readySet() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready []string

	for _, nodeID := range c.plan.Order {
		if c.attempted[nodeID] {
			continue
		}

		if c.upstreamSucceededLocked(nodeID) {
			ready = append(ready, nodeID)
		}
	}

	return ready
}

func (c *coordinator) upstreamSucceededLocked(nodeID string) bool {
	for _, dep := range c.plan.Upstream[nodeID] {
		result, ok := c.results[dep]
		if !ok || result.Status != models.NodeStatusSuccess {
			return false
		}
	}

	return true
}

// dispatchWave executes the ready nodes concurrently, bounded by the run's
// fan-out limit, and returns when every dispatch finished.
func (c *coordinator) dispatchWave(ctx context.Context, ready []string) {
	sem := make(chan struct{}, c.maxParallel)

	var wg sync.WaitGroup

	for _, nodeID := range ready {
		if ctx.Err() != nil {
			break
		}

		c.mu.Lock()
		c.attempted[nodeID] = true
		c.mu.Unlock()

		sem <- struct{}{}

		wg.Add(1)

		go func(nodeID string) {
			defer wg.Done()
			defer func() { <-sem }()

			c.executeNode(ctx, nodeID)
		}(nodeID)
	}

	wg.Wait()
}

func (c *coordinator) executeNode(ctx context.Context, nodeID string) {
	node := c.workflow.NodeByID(nodeID)
	started := time.Now().UTC()

	ctx, span := otelhelper.StartSpan(ctx, c.runner.tracer, "node",
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	c.emitter.nodeStarted(ctx, node)

	if node.Disabled {
		c.logger.InfoContext(ctx, "Node is disabled, skipping", "node_id", nodeID)
		c.record(ctx, successResult(nodeID, nil, started))
		c.emitter.nodeFinished(ctx, node, nil, started)

		return
	}

	output, failure := c.runNode(ctx, node)

	if failure != nil {
		otelhelper.SetError(span, errors.New(failure.Message))
		c.logger.WarnContext(ctx, "Node failed",
			"node_id", nodeID,
			"failure_kind", string(failure.Kind),
			"error", failure.Message,
		)
		c.record(ctx, failedResult(nodeID, failure, started))
		c.emitter.nodeFailed(ctx, node, failure, started)

		return
	}

	c.record(ctx, successResult(nodeID, output, started))
	c.emitter.nodeFinished(ctx, node, output, started)
}

// runNode resolves parameters, creates the executor, and dispatches it with
// the per-node timeout. The returned failure carries the taxonomy kind.
func (c *coordinator) runNode(ctx context.Context, node *models.Node) (any, *models.NodeFailure) {
	resolved, err := c.runner.evaluator.Resolve(node.Parameters, c.scope())
	if err != nil {
		return nil, &models.NodeFailure{Kind: models.FailureKindEvaluation, Message: err.Error()}
	}

	executor, err := c.runner.registry.Create(node.Type, resolved)
	if err != nil {
		return nil, &models.NodeFailure{Kind: models.FailureKindDispatch, Message: err.Error()}
	}

	nodeCtx, cancel := context.WithTimeout(ctx, c.nodeTimeout)
	defer cancel()

	output, err := executor.Execute(nodeCtx, protocol.ExecutionInput{
		RunID:      c.run.ID,
		WorkflowID: c.run.WorkflowID,
		TenantID:   c.run.TenantID,
		NodeID:     node.ID,
		Parameters: resolved,
		Inputs:     c.gatherInputs(node.ID),
		Vars:       c.vars,
		Logger:     c.logger.With("node_id", node.ID, "node_type", node.Type),
		Events:     c.emitter.sink(node.ID),
	})
	if err != nil {
		return nil, c.classify(ctx, nodeCtx, err)
	}

	return output, nil
}

func (c *coordinator) classify(ctx, nodeCtx context.Context, err error) *models.NodeFailure {
	switch {
	case ctx.Err() != nil:
		return &models.NodeFailure{Kind: models.FailureKindCancelled, Message: "run cancelled"}
	case errors.Is(nodeCtx.Err(), context.DeadlineExceeded):
		return &models.NodeFailure{
			Kind:    models.FailureKindTimeout,
			Message: fmt.Sprintf("node exceeded %s budget", c.nodeTimeout),
		}
	default:
		return &models.NodeFailure{Kind: models.FailureKindBackend, Message: err.Error()}
	}
}

// scope builds the expression environment from committed results only.
func (c *coordinator) scope() *expression.Scope {
	c.mu.Lock()
	steps := make(map[string]*models.NodeResult, len(c.results))

	for nodeID, result := range c.results {
		steps[nodeID] = result
	}
	c.mu.Unlock()

	return &expression.Scope{
		RunID:      c.run.ID,
		WorkflowID: c.run.WorkflowID,
		TenantID:   c.run.TenantID,
		Actor:      c.actor,
		Trigger:    c.run.TriggerInput,
		Variables:  c.vars.Snapshot(),
		Steps:      steps,
	}
}

// gatherInputs routes successful upstream outputs to this node's input
// ports. Fan-in on the same port resolves last-writer-wins over the
// connection declaration order.
func (c *coordinator) gatherInputs(nodeID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	inputs := make(map[string]any)

	for _, conn := range c.plan.Inbound[nodeID] {
		result, ok := c.results[conn.SourceNode]
		if !ok || result.Status != models.NodeStatusSuccess {
			continue
		}

		inputs[conn.TargetPort] = result.Output
	}

	return inputs
}

// record commits a node result: once into the in-memory view driving the
// scheduler, once into the store. Store append failures are logged; the
// in-memory result stays authoritative for this run.
func (c *coordinator) record(ctx context.Context, result *models.NodeResult) {
	c.mu.Lock()
	c.results[result.NodeID] = result
	c.mu.Unlock()

	err := c.runner.persistence.ExecutionRepository().
		AppendNodeResult(ctx, c.run.TenantID, c.run.ID, result)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to persist node result",
			"node_id", result.NodeID, "error", err)
	}
}

func (c *coordinator) finalize(ctx context.Context) {
	c.mu.Lock()
	c.run.NodeResults = c.results

	var firstFailure *models.NodeResult

	unattempted := 0

	for _, nodeID := range c.plan.Order {
		if !c.attempted[nodeID] {
			unattempted++

			continue
		}

		result := c.results[nodeID]
		if result != nil && result.Failure != nil && firstFailure == nil {
			firstFailure = result
		}
	}

	cancelled := ctx.Err() != nil
	c.mu.Unlock()

	finished := time.Now().UTC()
	c.run.FinishedAt = &finished

	switch {
	case cancelled:
		c.run.Status = models.RunStatusError
		c.run.Error = "run cancelled"
	case firstFailure != nil:
		c.run.Status = models.RunStatusError
		c.run.Error = fmt.Sprintf("node %s failed (%s): %s",
			firstFailure.NodeID, firstFailure.Failure.Kind, firstFailure.Failure.Message)
	case unattempted > 0:
		// Unreachable nodes without a recorded failure mean an upstream
		// failure blocked them.
		c.run.Status = models.RunStatusError
		c.run.Error = "run blocked before completion"
	default:
		c.run.Status = models.RunStatusSuccess
		c.run.Output = c.selectOutput()
	}

	c.saveRun(ctx)

	if c.run.Status == models.RunStatusSuccess {
		c.logger.InfoContext(ctx, "Run finished")
		c.emitter.runFinished(ctx)
	} else {
		c.logger.WarnContext(ctx, "Run failed", "error", c.run.Error)
		c.emitter.runFailed(ctx)
	}
}

// selectOutput picks the run output: the designated output node when
// configured, otherwise the sole terminal node's output, otherwise a map of
// every terminal output keyed by node id.
func (c *coordinator) selectOutput() any {
	if c.workflow.Settings != nil && c.workflow.Settings.OutputNodeID != "" {
		if result, ok := c.results[c.workflow.Settings.OutputNodeID]; ok {
			return result.Output
		}

		return nil
	}

	if len(c.plan.Terminals) == 1 {
		if result, ok := c.results[c.plan.Terminals[0]]; ok {
			return result.Output
		}

		return nil
	}

	outputs := make(map[string]any, len(c.plan.Terminals))

	for _, nodeID := range c.plan.Terminals {
		if result, ok := c.results[nodeID]; ok {
			outputs[nodeID] = result.Output
		}
	}

	return outputs
}

func (c *coordinator) saveRun(ctx context.Context) {
	err := c.runner.persistence.ExecutionRepository().SaveRun(ctx, c.run)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to persist run", "error", err)
	}
}

func successResult(nodeID string, output any, started time.Time) *models.NodeResult {
	return &models.NodeResult{
		NodeID:     nodeID,
		Status:     models.NodeStatusSuccess,
		Output:     output,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func failedResult(nodeID string, failure *models.NodeFailure, started time.Time) *models.NodeResult {
	return &models.NodeResult{
		NodeID:     nodeID,
		Status:     models.NodeStatusError,
		Failure:    failure,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}
