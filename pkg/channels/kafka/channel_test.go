package kafka

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
)

var kafkaContainer *kafkaTc.KafkaContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error

	kafkaContainer, err = kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	if err != nil {
		panic("Failed to start Kafka container: " + err.Error())
	}

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		panic("Failed to get Kafka brokers: " + err.Error())
	}

	os.Setenv("KAFKA_BROKERS", brokers[0])

	code := m.Run()

	if err := kafkaContainer.Terminate(ctx); err != nil {
		panic("Failed to terminate Kafka container: " + err.Error())
	}

	os.Exit(code)
}

func TestCreateChannel_MissingBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, _, err := CreateChannel(watermill.NewSlogLogger(nil), "test-service")
	require.Error(t, err)
}

func TestCreateChannel_EventRoundTrip(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NewSlogLogger(nil), "channel-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan any, 1)

	err = bus.Handle(events.RunFinishedEvent, func(_ context.Context, event any) error {
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

	// The consumer group takes a while to rebalance on a fresh broker.
	select {
	case raw := <-received:
		event, ok := raw.(*events.RunFinished)
		require.True(t, ok)
		assert.Equal(t, "acme", event.TenantID)
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, 42.0, event.Output)
	case <-time.After(60 * time.Second):
		t.Fatal("event never delivered")
	}
}
