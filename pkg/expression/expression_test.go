package expression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/expression"
	"github.com/loomworks/loom/pkg/models"
)

func testScope() *expression.Scope {
	return &expression.Scope{
		RunID:      "run-1",
		WorkflowID: "wf-1",
		TenantID:   "acme",
		Actor:      "api",
		Trigger:    map[string]any{"amount": 40.0, "customer": "c-9"},
		Variables:  map[string]any{"rate": 0.25, "region": "eu"},
		Steps: map[string]*models.NodeResult{
			"pricing": {
				NodeID: "pricing",
				Status: models.NodeStatusSuccess,
				Output: map[string]any{"total": 50.0},
			},
			"broken": {
				NodeID:  "broken",
				Status:  models.NodeStatusError,
				Failure: &models.NodeFailure{Kind: models.FailureKindBackend, Message: "boom"},
			},
		},
	}
}

func TestResolve_PlainValuesPassThrough(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"text":    "no markers here",
		"number":  42,
		"decimal": 4.5,
		"flag":    true,
		"nothing": nil,
	}, testScope())
	require.NoError(t, err)

	assert.Equal(t, "no markers here", resolved["text"])
	assert.Equal(t, 42, resolved["number"])
	assert.Equal(t, 4.5, resolved["decimal"])
	assert.Equal(t, true, resolved["flag"])
	assert.Nil(t, resolved["nothing"])
}

func TestResolve_SingleFragmentKeepsType(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"amount":  "{{ trigger.amount }}",
		"rate":    "{{ vars.rate }}",
		"product": "{{ trigger.amount * vars.rate }}",
		"total":   "{{ steps.pricing.output.total }}",
	}, testScope())
	require.NoError(t, err)

	assert.Equal(t, 40.0, resolved["amount"])
	assert.Equal(t, 0.25, resolved["rate"])
	assert.Equal(t, 10.0, resolved["product"])
	assert.Equal(t, 50.0, resolved["total"])
}

func TestResolve_MixedTextInterpolates(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"message": "customer {{ trigger.customer }} owes {{ steps.pricing.output.total }}",
	}, testScope())
	require.NoError(t, err)

	assert.Equal(t, "customer c-9 owes 50", resolved["message"])
}

func TestResolve_NestedStructures(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"payload": map[string]any{
			"region": "{{ vars.region }}",
			"items":  []any{"{{ trigger.amount }}", "static"},
		},
	}, testScope())
	require.NoError(t, err)

	payload := resolved["payload"].(map[string]any)
	assert.Equal(t, "eu", payload["region"])

	items := payload["items"].([]any)
	assert.Equal(t, 40.0, items[0])
	assert.Equal(t, "static", items[1])
}

func TestResolve_MissingReferenceIsTypedError(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	_, err := evaluator.Resolve(map[string]any{
		"value": "{{ steps.ghost.output }}",
	}, testScope())
	require.Error(t, err)
	assert.True(t, expression.IsEvaluationError(err))

	var evalErr *expression.EvaluationError

	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "steps.ghost.output", evalErr.Expression)
}

func TestResolve_FailedStepIsNotVisible(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	// "broken" failed, so its namespace never enters the scope.
	_, err := evaluator.Resolve(map[string]any{
		"value": "{{ steps.broken.output }}",
	}, testScope())
	require.Error(t, err)
	assert.True(t, expression.IsEvaluationError(err))
}

func TestResolve_RunContext(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"who": "{{ run.tenant_id }}/{{ run.workflow_id }} by {{ run.actor }}",
	}, testScope())
	require.NoError(t, err)

	assert.Equal(t, "acme/wf-1 by api", resolved["who"])
}

func TestResolve_Helpers(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	resolved, err := evaluator.Resolve(map[string]any{
		"fallback": "{{ coalesce(trigger.missing, vars.region, \"none\") }}",
		"rounded":  "{{ round(trigger.amount * 0.333, 2) }}",
	}, testScope())
	require.NoError(t, err)

	assert.Equal(t, "eu", resolved["fallback"])
	assert.Equal(t, 13.32, resolved["rounded"])
}

func TestResolve_UnterminatedFragment(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	_, err := evaluator.Resolve(map[string]any{
		"value": "hello {{ trigger.amount",
	}, testScope())
	require.Error(t, err)
	assert.True(t, expression.IsEvaluationError(err))
}

func TestResolve_InvalidExpressionFailsCompile(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()

	_, err := evaluator.Resolve(map[string]any{
		"value": "{{ trigger.amount + }}",
	}, testScope())
	require.Error(t, err)
	assert.True(t, expression.IsEvaluationError(err))
}

func TestResolve_RepeatedExpressionsHitCache(t *testing.T) {
	t.Parallel()

	evaluator := expression.NewEvaluator()
	scope := testScope()

	for range 50 {
		resolved, err := evaluator.Resolve(map[string]any{
			"amount": "{{ trigger.amount }}",
		}, scope)
		require.NoError(t, err)
		assert.Equal(t, 40.0, resolved["amount"])
	}
}
