package cmd

import (
	"log/slog"

	"github.com/loomworks/loom/pkg/registry"
)

// NewRegistry creates a registry with every built-in capability registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaults()

	return reg
}
