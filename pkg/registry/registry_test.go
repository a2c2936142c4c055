package registry_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/registry"
)

func newTestRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults()

	return reg
}

func TestRegistry_DefaultsRegistered(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	types := reg.Types()

	expected := []string{
		"data.count", "data.filter", "data.read", "data.write",
		"event.emit",
		"http.request",
		"logic.if",
		"math.add", "math.divide", "math.multiply", "math.subtract",
		"script.expr",
		"transform.map",
		"util.log",
	}
	assert.Equal(t, expected, types)
}

func TestRegistry_CreateKnownType(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	executor, err := reg.Create("math.add", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.NotNil(t, executor)
}

func TestRegistry_CreateUnknownType(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	_, err := reg.Create("alien.capability", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alien.capability")
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	factory, ok := reg.Lookup("logic.if")
	require.True(t, ok)
	assert.Equal(t, "logic.if", factory.ID())
	assert.NotEmpty(t, factory.Name())

	_, ok = reg.Lookup("alien.capability")
	assert.False(t, ok)
}

func TestRegistry_ValidateParameters(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	t.Run("valid parameters pass", func(t *testing.T) {
		t.Parallel()

		err := reg.ValidateParameters("data.read", map[string]any{"key": "counter"})
		assert.NoError(t, err)
	})

	t.Run("missing required parameter fails", func(t *testing.T) {
		t.Parallel()

		err := reg.ValidateParameters("data.read", map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data.read")
	})

	t.Run("unregistered type passes", func(t *testing.T) {
		t.Parallel()

		err := reg.ValidateParameters("alien.capability", map[string]any{"whatever": true})
		assert.NoError(t, err)
	})
}

func TestRegistry_HealthCheck(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	check, ok := reg.HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "ok", check["status"])

	empty := registry.NewRegistry(slog.Default())
	_, ok = empty.HealthCheck()
	assert.False(t, ok)
}
