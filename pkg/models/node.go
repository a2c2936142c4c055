package models

// Node is a single unit of computation inside a workflow graph. Type is a
// namespaced identifier ("domain.operation") selecting an executor
// capability; Parameters may contain unresolved {{ expression }} fragments.
type Node struct {
	ID         string         `json:"id"         validate:"required"`
	Name       string         `json:"name"       validate:"required,min=1"`
	Type       string         `json:"type"       validate:"required"`
	Parameters map[string]any `json:"parameters"`
	Inputs     []string       `json:"inputs,omitempty"`  // declared input port names
	Outputs    []string       `json:"outputs,omitempty"` // declared output port names
	Disabled   bool           `json:"disabled,omitempty"`
	Position   *Position      `json:"position,omitempty"` // layout hint, no execution semantics
}

// Position is a canvas layout hint carried through for front-end round-trips.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultPort is the port name assumed when a connection omits one.
const DefaultPort = "main"

// Connection is a directed data-flow edge from a source node's output port
// to a target node's input port.
type Connection struct {
	SourceNode string `json:"source_node" validate:"required"`
	SourcePort string `json:"source_port"`
	TargetNode string `json:"target_node" validate:"required"`
	TargetPort string `json:"target_port"`
}

// Normalize fills empty port names with the default port.
func (c *Connection) Normalize() {
	if c.SourcePort == "" {
		c.SourcePort = DefaultPort
	}

	if c.TargetPort == "" {
		c.TargetPort = DefaultPort
	}
}
