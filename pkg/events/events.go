// Package events defines the event types published over the run lifecycle.
package events

import (
	"time"

	"github.com/loomworks/loom/pkg/models"
)

type EventType string

// Topic is the single stream every lifecycle event is published to.
const Topic = "loom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"
	RunFailedEvent   EventType = "run.failed"

	NodeStartedEvent  EventType = "node.started"
	NodeFinishedEvent EventType = "node.finished"
	NodeFailedEvent   EventType = "node.failed"

	// NodeCustomEvent carries events emitted by nodes themselves.
	NodeCustomEvent EventType = "node.custom"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TenantID   string         `json:"tenant_id"`
	WorkflowID string         `json:"workflow_id"`
	RunID      string         `json:"run_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	TriggerInput map[string]any `json:"trigger_input,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	Output   any           `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type NodeStarted struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeFinished struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`
	Output     any    `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID      string             `json:"node_id"`
	NodeType    string             `json:"node_type"`
	FailureKind models.FailureKind `json:"failure_kind"`
	Error       string             `json:"error"`
	DurationMs  int64              `json:"duration_ms"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// NodeCustom is an application-level event a node emitted during execution.
// The engine forwards it as-is; delivery is fire-and-forget.
type NodeCustom struct {
	BaseEvent

	NodeID  string         `json:"node_id"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (e NodeCustom) GetType() EventType {
	return NodeCustomEvent
}
