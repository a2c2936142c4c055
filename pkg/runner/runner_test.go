package runner_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence/file"
	"github.com/loomworks/loom/pkg/protocol"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/runner"
	"github.com/loomworks/loom/pkg/testutil"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

// blockFactory registers a node type that blocks until its context ends or
// the given duration elapses. The started channel reports the first dispatch.
type blockFactory struct {
	id      string
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func newBlockFactory(id string, delay time.Duration) *blockFactory {
	return &blockFactory{id: id, delay: delay, started: make(chan struct{})}
}

func (f *blockFactory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &blockNode{factory: f}, nil
}

func (f *blockFactory) ID() string             { return f.id }
func (f *blockFactory) Name() string           { return f.id }
func (f *blockFactory) Description() string    { return "" }
func (f *blockFactory) Schema() map[string]any { return nil }

type blockNode struct {
	factory *blockFactory
}

func (n *blockNode) Execute(ctx context.Context, _ protocol.ExecutionInput) (any, error) {
	n.factory.once.Do(func() { close(n.factory.started) })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(n.factory.delay):
		return "done", nil
	}
}

func newTestRunner(t *testing.T, publisher eventbus.EventPublisher, config runner.Config, extra ...protocol.NodeFactory) *runner.Runner {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults()

	for _, factory := range extra {
		reg.Register(factory)
	}

	return runner.NewRunner(store, reg, publisher, slog.Default(), config)
}

func TestExecute_ArithmeticChain(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("sum", "math.add", map[string]any{"a": 5.0, "b": 3.0}),
			testutil.Node("double", "math.multiply", map[string]any{"b": 2.0}),
		),
		testutil.WithConnections(testutil.Connect("sum", "double")),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 16.0, run.Output)

	require.Len(t, run.NodeResults, 2)
	assert.Equal(t, 8.0, run.NodeResults["sum"].Output)
	assert.Equal(t, 16.0, run.NodeResults["double"].Output)
}

func TestExecute_FilterThenCount(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("items", "transform.map", map[string]any{
				"value": []any{1, 2, 3, 4, 5},
			}),
			testutil.Node("keep", "data.filter", map[string]any{"where": "item > 2"}),
			testutil.Node("tally", "data.count", map[string]any{}),
		),
		testutil.WithConnections(
			testutil.Connect("items", "keep"),
			testutil.Connect("keep", "tally"),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 3, run.Output)
}

func TestExecute_DiamondDependency(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("source", "transform.map", map[string]any{"value": 10.0}),
			testutil.Node("left", "math.add", map[string]any{"b": 1.0}),
			testutil.Node("right", "math.add", map[string]any{"b": 2.0}),
			testutil.Node("sink", "script.expr", map[string]any{
				"code": "inputs.left + inputs.right",
			}),
		),
		testutil.WithConnections(
			testutil.Connect("source", "left"),
			testutil.Connect("source", "right"),
			testutil.ConnectPorts("left", "main", "sink", "left"),
			testutil.ConnectPorts("right", "main", "sink", "right"),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	require.Len(t, run.NodeResults, 4)

	// 11 + 12: the sink saw both branch outputs exactly once.
	assert.Equal(t, 23.0, run.Output)
}

func TestExecute_FailureBlocksDownstreamOnly(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("source", "transform.map", map[string]any{"value": 1.0}),
			testutil.Node("bad", "math.divide", map[string]any{"a": 1.0, "b": 0.0}),
			testutil.Node("good", "math.add", map[string]any{"b": 1.0}),
			testutil.Node("blocked", "math.add", map[string]any{"b": 1.0}),
		),
		testutil.WithConnections(
			testutil.Connect("source", "bad"),
			testutil.Connect("source", "good"),
			testutil.Connect("bad", "blocked"),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Contains(t, run.Error, "bad")

	// The sibling branch still completed.
	require.Contains(t, run.NodeResults, "good")
	assert.Equal(t, models.NodeStatusSuccess, run.NodeResults["good"].Status)

	// The failed node carries a typed failure; its downstream never ran.
	require.Contains(t, run.NodeResults, "bad")
	assert.Equal(t, models.FailureKindBackend, run.NodeResults["bad"].Failure.Kind)
	assert.NotContains(t, run.NodeResults, "blocked")
}

func TestExecute_EvaluationFailure(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("broken", "transform.map", map[string]any{
				"value": "{{ steps.ghost.output }}",
			}),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Equal(t, models.FailureKindEvaluation, run.NodeResults["broken"].Failure.Kind)
}

func TestExecute_DispatchFailure(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.Node("alien", "alien.capability", nil)),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Equal(t, models.FailureKindDispatch, run.NodeResults["alien"].Failure.Kind)
}

func TestExecute_NodeTimeout(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.Node("slow", "test.block", nil)),
	)

	r := newTestRunner(t, nil,
		runner.Config{NodeTimeout: 30 * time.Millisecond},
		newBlockFactory("test.block", time.Second))

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Equal(t, models.FailureKindTimeout, run.NodeResults["slow"].Failure.Kind)
}

func TestStart_CancelFinalizesRun(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.Node("slow", "test.block", nil)),
	)

	block := newBlockFactory("test.block", time.Minute)
	r := newTestRunner(t, nil, runner.Config{}, block)

	run, err := r.Start(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	select {
	case <-block.started:
	case <-time.After(5 * time.Second):
		t.Fatal("node never dispatched")
	}

	require.True(t, r.Cancel(workflow.TenantID, run.ID))

	r.Wait(workflow.TenantID, run.ID)

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Equal(t, "run cancelled", run.Error)
	assert.Equal(t, models.FailureKindCancelled, run.NodeResults["slow"].Failure.Kind)
}

func TestExecute_RepeatedRunsAreIndependent(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("sum", "math.add", map[string]any{"a": 1.0, "b": 2.0}),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	first, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	second, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.RunStatusSuccess, first.Status)
	assert.Equal(t, models.RunStatusSuccess, second.Status)
	assert.Equal(t, 3.0, first.Output)
	assert.Equal(t, 3.0, second.Output)
}

func TestExecute_DisabledNodeIsSkipped(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("first", "math.add", map[string]any{"a": 1.0, "b": 1.0}),
			testutil.DisabledNode("middle", "math.divide", map[string]any{"a": 1.0, "b": 0.0}),
			testutil.Node("last", "util.log", map[string]any{"message": "made it"}),
		),
		testutil.WithConnections(
			testutil.Connect("first", "middle"),
			testutil.Connect("middle", "last"),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	// The disabled node never dispatched, so the guaranteed failure in its
	// parameters never happened, and downstream still ran.
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, models.NodeStatusSuccess, run.NodeResults["middle"].Status)
	assert.Nil(t, run.NodeResults["middle"].Output)
	assert.Equal(t, models.NodeStatusSuccess, run.NodeResults["last"].Status)
}

func TestExecute_TriggerInputInExpressions(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("scale", "math.multiply", map[string]any{
				"a": "{{ trigger.amount }}",
				"b": "{{ vars.rate }}",
			}),
		),
		testutil.WithVariables(map[string]any{"rate": 2.0}),
	)

	r := newTestRunner(t, nil, runner.Config{})

	run, err := r.Execute(context.Background(), workflow,
		map[string]any{"amount": 21.0}, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 42.0, run.Output)
}

func TestExecute_OutputNodeSelection(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		testutil.Node("a", "math.add", map[string]any{"a": 1.0, "b": 1.0}),
		testutil.Node("b", "math.add", map[string]any{"a": 2.0, "b": 2.0}),
	}

	t.Run("designated output node", func(t *testing.T) {
		t.Parallel()

		workflow := testutil.CreateTestWorkflow(
			testutil.WithNodes(nodes...),
			testutil.WithSettings(&models.WorkflowSettings{OutputNodeID: "a"}),
		)

		r := newTestRunner(t, nil, runner.Config{})

		run, err := r.Execute(context.Background(), workflow, nil, "test")
		require.NoError(t, err)
		assert.Equal(t, 2.0, run.Output)
	})

	t.Run("multiple terminals produce a map", func(t *testing.T) {
		t.Parallel()

		workflow := testutil.CreateTestWorkflow(testutil.WithNodes(nodes...))

		r := newTestRunner(t, nil, runner.Config{})

		run, err := r.Execute(context.Background(), workflow, nil, "test")
		require.NoError(t, err)

		outputs := run.Output.(map[string]any)
		assert.Equal(t, 2.0, outputs["a"])
		assert.Equal(t, 4.0, outputs["b"])
	})
}

func TestExecute_FanOutRespectsMaxParallel(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)

	gauge := &gaugeFactory{onExecute: func() func() {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		return func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}
	}}

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("n1", "test.gauge", nil),
			testutil.Node("n2", "test.gauge", nil),
			testutil.Node("n3", "test.gauge", nil),
			testutil.Node("n4", "test.gauge", nil),
		),
		testutil.WithSettings(&models.WorkflowSettings{MaxParallel: 2}),
	)

	r := newTestRunner(t, nil, runner.Config{}, gauge)

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2)
	assert.GreaterOrEqual(t, maxSeen, 1)
}

type gaugeFactory struct {
	onExecute func() func()
}

func (f *gaugeFactory) Create(_ map[string]any) (protocol.NodeExecutor, error) {
	return &gaugeNode{onExecute: f.onExecute}, nil
}

func (f *gaugeFactory) ID() string             { return "test.gauge" }
func (f *gaugeFactory) Name() string           { return "test.gauge" }
func (f *gaugeFactory) Description() string    { return "" }
func (f *gaugeFactory) Schema() map[string]any { return nil }

type gaugeNode struct {
	onExecute func() func()
}

func (n *gaugeNode) Execute(_ context.Context, _ protocol.ExecutionInput) (any, error) {
	done := n.onExecute()
	defer done()

	time.Sleep(20 * time.Millisecond)

	return "ok", nil
}

func TestExecute_LifecycleEvents(t *testing.T) {
	t.Parallel()

	publisher := &capturePublisher{}

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("announce", "event.emit", map[string]any{
				"name":    "order.shipped",
				"payload": map[string]any{"order": "o-1"},
			}),
		),
	)

	r := newTestRunner(t, publisher, runner.Config{})

	run, err := r.Execute(context.Background(), workflow, nil, "test")
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSuccess, run.Status)

	types := publisher.types()
	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.NodeStartedEvent,
		events.NodeCustomEvent,
		events.NodeFinishedEvent,
		events.RunFinishedEvent,
	}, types)
}

func TestExecute_InvalidDefinitionNeverRuns(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.Node("a", "math.add", nil),
			testutil.Node("b", "math.add", nil),
		),
		testutil.WithConnections(
			testutil.Connect("a", "b"),
			testutil.Connect("b", "a"),
		),
	)

	r := newTestRunner(t, nil, runner.Config{})

	_, err := r.Execute(context.Background(), workflow, nil, "test")
	require.Error(t, err)
}
