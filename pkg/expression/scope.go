package expression

import (
	"math"

	"github.com/loomworks/loom/pkg/models"
)

// Scope is the layered variable environment an expression sees: the
// invocation context, the raw trigger input, workflow variables, and a
// namespaced view of completed upstream node outputs.
type Scope struct {
	RunID      string
	WorkflowID string
	TenantID   string
	Actor      string

	Trigger   map[string]any
	Variables map[string]any
	Steps     map[string]*models.NodeResult
}

// Env materializes the scope as an expr environment. Step outputs are
// exposed as steps.<nodeID>.output so downstream parameters read committed
// results only.
func (s *Scope) Env() map[string]any {
	steps := make(map[string]any, len(s.Steps))

	for nodeID, result := range s.Steps {
		if result.Status != models.NodeStatusSuccess {
			continue
		}

		steps[nodeID] = map[string]any{
			"output": result.Output,
			"status": string(result.Status),
		}
	}

	return map[string]any{
		"run": map[string]any{
			"id":          s.RunID,
			"workflow_id": s.WorkflowID,
			"tenant_id":   s.TenantID,
			"actor":       s.Actor,
		},
		"trigger": s.Trigger,
		"vars":    s.Variables,
		"steps":   steps,

		// Helper whitelist. Everything else comes from the expr builtin
		// library, which is already sandboxed.
		"coalesce": coalesce,
		"round":    roundTo,
	}
}

func coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}

	return nil
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))

	return math.Round(value*factor) / factor
}
