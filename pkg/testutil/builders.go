// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
)

// CreateTestWorkflow creates a workflow with default values that can be
// overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:       uuid.New().String(),
		TenantID: "test-tenant",
		Name:     "Test Workflow",
		Version:  1,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithNodes sets the workflow's nodes.
func WithNodes(nodes ...*models.Node) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

// WithConnections sets the workflow's connections.
func WithConnections(connections ...*models.Connection) func(*models.Workflow) {
	return func(w *models.Workflow) {
		for _, conn := range connections {
			conn.Normalize()
		}

		w.Connections = connections
	}
}

// WithSettings sets the workflow's settings.
func WithSettings(settings *models.WorkflowSettings) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Settings = settings
	}
}

// WithVariables sets the workflow's variables.
func WithVariables(variables map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = variables
	}
}

// WithTenant sets the workflow's tenant.
func WithTenant(tenantID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TenantID = tenantID
	}
}

// Node creates a node with the given id, type, and parameters.
func Node(id, nodeType string, parameters map[string]any) *models.Node {
	return &models.Node{
		ID:         id,
		Name:       id,
		Type:       nodeType,
		Parameters: parameters,
	}
}

// DisabledNode creates a disabled node.
func DisabledNode(id, nodeType string, parameters map[string]any) *models.Node {
	node := Node(id, nodeType, parameters)
	node.Disabled = true

	return node
}

// Connect creates a connection between default ports.
func Connect(source, target string) *models.Connection {
	conn := &models.Connection{SourceNode: source, TargetNode: target}
	conn.Normalize()

	return conn
}

// ConnectPorts creates a connection between named ports.
func ConnectPorts(source, sourcePort, target, targetPort string) *models.Connection {
	conn := &models.Connection{
		SourceNode: source,
		SourcePort: sourcePort,
		TargetNode: target,
		TargetPort: targetPort,
	}
	conn.Normalize()

	return conn
}
