// Package plan compiles workflow definitions into immutable execution plans.
//
// Compilation verifies the connection graph is a DAG and produces a
// topological ordering plus per-node dependency sets. A workflow that fails
// compilation can never be run.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// Plan is the compiled, immutable form of a workflow graph. Order is a valid
// linearization: every node appears after all of its upstream dependencies.
type Plan struct {
	WorkflowID string
	Version    int

	Order      []string            // topological ordering of node ids
	Upstream   map[string][]string // node id -> ids it depends on
	Downstream map[string][]string // node id -> ids depending on it
	Terminals  []string            // nodes with no outgoing connections

	// Inbound lists, per node, the connections feeding it in declaration
	// order. Fan-in on the same input port resolves last-writer-wins over
	// this order.
	Inbound map[string][]*models.Connection
}

// DefinitionError reports everything structurally wrong with a workflow
// definition: duplicate node ids, dangling connection references, cycles.
type DefinitionError struct {
	WorkflowID string
	Problems   []string
	Cycle      []string // offending node sequence when a cycle was detected
}

func (e *DefinitionError) Error() string {
	msg := fmt.Sprintf("invalid workflow definition %s: %s", e.WorkflowID, strings.Join(e.Problems, "; "))
	if len(e.Cycle) > 0 {
		msg += fmt.Sprintf(" (cycle: %s)", strings.Join(e.Cycle, " -> "))
	}

	return msg
}

// IsDefinitionError reports whether err is a structural definition error.
func IsDefinitionError(err error) bool {
	var target *DefinitionError

	return errors.As(err, &target)
}

// Compile validates a workflow definition and produces its execution plan.
// Compilation is deterministic and side-effect-free.
func Compile(workflow *models.Workflow) (*Plan, error) {
	defErr := &DefinitionError{WorkflowID: workflow.ID}

	nodes := make(map[string]*models.Node, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, dup := nodes[node.ID]; dup {
			defErr.Problems = append(defErr.Problems, fmt.Sprintf("duplicate node id %q", node.ID))

			continue
		}

		nodes[node.ID] = node
	}

	upstream := make(map[string][]string, len(nodes))
	downstream := make(map[string][]string, len(nodes))
	inbound := make(map[string][]*models.Connection)

	for _, conn := range workflow.Connections {
		conn.Normalize()

		if _, ok := nodes[conn.SourceNode]; !ok {
			defErr.Problems = append(defErr.Problems,
				fmt.Sprintf("connection references unknown source node %q", conn.SourceNode))

			continue
		}

		if _, ok := nodes[conn.TargetNode]; !ok {
			defErr.Problems = append(defErr.Problems,
				fmt.Sprintf("connection references unknown target node %q", conn.TargetNode))

			continue
		}

		if conn.SourceNode == conn.TargetNode {
			defErr.Problems = append(defErr.Problems,
				fmt.Sprintf("node %q connects to itself", conn.SourceNode))

			continue
		}

		inbound[conn.TargetNode] = append(inbound[conn.TargetNode], conn)

		if !contains(upstream[conn.TargetNode], conn.SourceNode) {
			upstream[conn.TargetNode] = append(upstream[conn.TargetNode], conn.SourceNode)
			downstream[conn.SourceNode] = append(downstream[conn.SourceNode], conn.TargetNode)
		}
	}

	if len(defErr.Problems) > 0 {
		return nil, defErr
	}

	order, leftover := kahn(nodes, upstream, downstream)
	if len(leftover) > 0 {
		defErr.Problems = append(defErr.Problems, "workflow graph contains a cycle")
		defErr.Cycle = extractCycle(leftover, upstream)

		return nil, defErr
	}

	terminals := make([]string, 0, 1)

	for _, id := range order {
		if len(downstream[id]) == 0 {
			terminals = append(terminals, id)
		}
	}

	return &Plan{
		WorkflowID: workflow.ID,
		Version:    workflow.Version,
		Order:      order,
		Upstream:   upstream,
		Downstream: downstream,
		Terminals:  terminals,
		Inbound:    inbound,
	}, nil
}

// kahn runs Kahn's algorithm. Nodes left with a nonzero in-degree once the
// queue drains belong to at least one cycle.
func kahn(nodes map[string]*models.Node, upstream, downstream map[string][]string) ([]string, []string) {
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = len(upstream[id])
	}

	queue := make([]string, 0, len(nodes))

	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	// Independent roots have no required order; sorting keeps plans stable
	// across recompilations of the same definition.
	sort.Strings(queue)

	order := make([]string, 0, len(nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := make([]string, 0, len(downstream[id]))

		for _, dep := range downstream[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				next = append(next, dep)
			}
		}

		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(order) == len(nodes) {
		return order, nil
	}

	leftover := make([]string, 0, len(nodes)-len(order))

	for id, deg := range indegree {
		if deg > 0 {
			leftover = append(leftover, id)
		}
	}

	sort.Strings(leftover)

	return order, leftover
}

// extractCycle walks upstream edges among the leftover nodes until a node
// repeats, yielding one offending cycle for diagnostics.
func extractCycle(leftover []string, upstream map[string][]string) []string {
	inLeftover := make(map[string]bool, len(leftover))
	for _, id := range leftover {
		inLeftover[id] = true
	}

	seen := make(map[string]int)
	path := []string{}
	current := leftover[0]

	for {
		if at, ok := seen[current]; ok {
			cycle := append([]string{}, path[at:]...)
			cycle = append(cycle, current)

			// The walk followed upstream edges; reverse so the sequence
			// reads in data-flow direction.
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}

			return cycle
		}

		seen[current] = len(path)
		path = append(path, current)

		advanced := false

		for _, up := range upstream[current] {
			if inLeftover[up] {
				current = up
				advanced = true

				break
			}
		}

		if !advanced {
			return path
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
