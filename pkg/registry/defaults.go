// Package registry provides node factory registration for the built-in capabilities.
package registry

import (
	"github.com/loomworks/loom/pkg/nodes/arithmetic"
	"github.com/loomworks/loom/pkg/nodes/conditional"
	"github.com/loomworks/loom/pkg/nodes/data"
	"github.com/loomworks/loom/pkg/nodes/emit"
	"github.com/loomworks/loom/pkg/nodes/httprequest"
	"github.com/loomworks/loom/pkg/nodes/logmsg"
	"github.com/loomworks/loom/pkg/nodes/script"
	"github.com/loomworks/loom/pkg/nodes/transform"
)

// RegisterDefaults registers all built-in node factories.
func (r *Registry) RegisterDefaults() {
	for _, factory := range arithmetic.Factories() {
		r.Register(factory)
	}

	for _, factory := range data.Factories() {
		r.Register(factory)
	}

	r.Register(conditional.NewFactory())
	r.Register(transform.NewFactory())
	r.Register(httprequest.NewFactory())
	r.Register(logmsg.NewFactory())
	r.Register(emit.NewFactory())
	r.Register(script.NewFactory())
}
