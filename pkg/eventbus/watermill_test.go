package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/channels/gochannel"
	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(nil))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	received := make(chan any, 1)

	bus := newTestBus(t)

	err := bus.Handle(events.RunFinishedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.RunFinished{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.RunFinishedEvent,
			Timestamp:  time.Now().UTC(),
			TenantID:   "acme",
			WorkflowID: "wf-1",
			RunID:      "run-1",
		},
		Output:   42.0,
		Duration: time.Second,
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", sent))

	select {
	case raw := <-received:
		event, ok := raw.(*events.RunFinished)
		require.True(t, ok)
		assert.Equal(t, "acme", event.TenantID)
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, 42.0, event.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	received := make(chan any, 1)

	bus := newTestBus(t)

	err := bus.Handle(events.NodeFailedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// An event with no handler is dropped without blocking the stream.
	started := events.NodeStarted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.NodeStartedEvent},
		NodeID:    "n1",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", started))

	failed := events.NodeFailed{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.NodeFailedEvent},
		NodeID:    "n1",
		Error:     "division by zero",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", failed))

	select {
	case raw := <-received:
		event, ok := raw.(*events.NodeFailed)
		require.True(t, ok)
		assert.Equal(t, "division by zero", event.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
