// Package interchange converts workflow definitions to and from the wire
// shape used by the HTTP surface and definition files. The conversion is
// lossless: exporting and re-importing a definition reproduces a
// structurally identical graph.
package interchange

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// Document is the wire shape of a workflow definition. Connections are keyed
// "sourceNode:sourcePort" and list the endpoints that output feeds.
type Document struct {
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Version     int                      `json:"version,omitempty"`
	Nodes       []*NodeDocument          `json:"nodes"`
	Connections map[string][]Endpoint    `json:"connections,omitempty"`
	Settings    *models.WorkflowSettings `json:"settings,omitempty"`
	Variables   map[string]any           `json:"variables,omitempty"`
}

type NodeDocument struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Type       string           `json:"type"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Disabled   bool             `json:"disabled,omitempty"`
	Position   *models.Position `json:"position,omitempty"`
}

type Endpoint struct {
	Node string `json:"node"`
	Port string `json:"port,omitempty"`
}

// Export renders a workflow definition into its wire shape. Connection keys
// are emitted for every source output in declaration order.
func Export(workflow *models.Workflow) *Document {
	doc := &Document{
		ID:          workflow.ID,
		Name:        workflow.Name,
		Description: workflow.Description,
		Version:     workflow.Version,
		Nodes:       make([]*NodeDocument, 0, len(workflow.Nodes)),
		Settings:    workflow.Settings,
		Variables:   workflow.Variables,
	}

	for _, node := range workflow.Nodes {
		nodeDoc := &NodeDocument{
			ID:         node.ID,
			Name:       node.Name,
			Type:       node.Type,
			Parameters: node.Parameters,
			Disabled:   node.Disabled,
		}

		if node.Position != nil {
			position := *node.Position
			nodeDoc.Position = &position
		}

		doc.Nodes = append(doc.Nodes, nodeDoc)
	}

	if len(workflow.Connections) > 0 {
		doc.Connections = make(map[string][]Endpoint)

		for _, conn := range workflow.Connections {
			key := connectionKey(conn.SourceNode, conn.SourcePort)
			doc.Connections[key] = append(doc.Connections[key], Endpoint{
				Node: conn.TargetNode,
				Port: conn.TargetPort,
			})
		}
	}

	return doc
}

// Import builds a workflow definition from its wire shape. Connections are
// rebuilt in a deterministic order: sorted by source key, then by endpoint
// declaration order.
func Import(doc *Document) (*models.Workflow, error) {
	workflow := &models.Workflow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Nodes:       make([]*models.Node, 0, len(doc.Nodes)),
		Settings:    doc.Settings,
		Variables:   doc.Variables,
	}

	for _, nodeDoc := range doc.Nodes {
		node := &models.Node{
			ID:         nodeDoc.ID,
			Name:       nodeDoc.Name,
			Type:       nodeDoc.Type,
			Parameters: nodeDoc.Parameters,
			Disabled:   nodeDoc.Disabled,
		}

		if nodeDoc.Position != nil {
			position := *nodeDoc.Position
			node.Position = &position
		}

		workflow.Nodes = append(workflow.Nodes, node)
	}

	keys := make([]string, 0, len(doc.Connections))
	for key := range doc.Connections {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		sourceNode, sourcePort, err := parseConnectionKey(key)
		if err != nil {
			return nil, err
		}

		for _, endpoint := range doc.Connections[key] {
			conn := &models.Connection{
				SourceNode: sourceNode,
				SourcePort: sourcePort,
				TargetNode: endpoint.Node,
				TargetPort: endpoint.Port,
			}
			conn.Normalize()

			workflow.Connections = append(workflow.Connections, conn)
		}
	}

	return workflow, nil
}

func connectionKey(node, port string) string {
	if port == "" {
		port = models.DefaultPort
	}

	return node + ":" + port
}

func parseConnectionKey(key string) (node, port string, err error) {
	node, port, found := strings.Cut(key, ":")
	if !found {
		return key, models.DefaultPort, nil
	}

	if node == "" {
		return "", "", fmt.Errorf("invalid connection key %q", key)
	}

	return node, port, nil
}
