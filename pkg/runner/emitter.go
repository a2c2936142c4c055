package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/protocol"
)

// emitter publishes run lifecycle events. Emission is fire-and-forget:
// publish failures are logged and never reach the scheduling path. A nil
// publisher disables emission entirely.
type emitter struct {
	publisher eventbus.EventPublisher
	run       *models.Run
	logger    *slog.Logger
}

func newEmitter(publisher eventbus.EventPublisher, run *models.Run, logger *slog.Logger) *emitter {
	return &emitter{publisher: publisher, run: run, logger: logger}
}

func (e *emitter) base(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		TenantID:   e.run.TenantID,
		WorkflowID: e.run.WorkflowID,
		RunID:      e.run.ID,
	}
}

func (e *emitter) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, e.run.WorkflowID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", string(event.GetType()), "error", err)
	}
}

func (e *emitter) runStarted(ctx context.Context) {
	e.publish(ctx, events.RunStarted{
		BaseEvent:    e.base(events.RunStartedEvent),
		TriggerInput: e.run.TriggerInput,
	})
}

func (e *emitter) runFinished(ctx context.Context) {
	e.publish(ctx, events.RunFinished{
		BaseEvent: e.base(events.RunFinishedEvent),
		Output:    e.run.Output,
		Duration:  time.Since(e.run.StartedAt),
	})
}

func (e *emitter) runFailed(ctx context.Context) {
	e.publish(ctx, events.RunFailed{
		BaseEvent: e.base(events.RunFailedEvent),
		Error:     e.run.Error,
		Duration:  time.Since(e.run.StartedAt),
	})
}

func (e *emitter) nodeStarted(ctx context.Context, node *models.Node) {
	e.publish(ctx, events.NodeStarted{
		BaseEvent: e.base(events.NodeStartedEvent),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})
}

func (e *emitter) nodeFinished(ctx context.Context, node *models.Node, output any, started time.Time) {
	e.publish(ctx, events.NodeFinished{
		BaseEvent:  e.base(events.NodeFinishedEvent),
		NodeID:     node.ID,
		NodeType:   node.Type,
		Output:     output,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

func (e *emitter) nodeFailed(ctx context.Context, node *models.Node, failure *models.NodeFailure, started time.Time) {
	e.publish(ctx, events.NodeFailed{
		BaseEvent:   e.base(events.NodeFailedEvent),
		NodeID:      node.ID,
		NodeType:    node.Type,
		FailureKind: failure.Kind,
		Error:       failure.Message,
		DurationMs:  time.Since(started).Milliseconds(),
	})
}

// sink exposes the emission surface handed to node backends.
func (e *emitter) sink(nodeID string) protocol.EventSink {
	return &nodeSink{emitter: e, nodeID: nodeID}
}

type nodeSink struct {
	emitter *emitter
	nodeID  string
}

func (s *nodeSink) Emit(ctx context.Context, name string, payload map[string]any) {
	s.emitter.publish(ctx, events.NodeCustom{
		BaseEvent: s.emitter.base(events.NodeCustomEvent),
		NodeID:    s.nodeID,
		Name:      name,
		Payload:   payload,
	})
}
