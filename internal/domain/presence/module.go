package presence

import (
	"context"

	"go.uber.org/fx"
)

// Module wires the Presence Registry for Fx composition, grounded on the
// teacher's registry.Module.
var Module = fx.Module("presence",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, r *Registry) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				r.Shutdown()
				return nil
			},
		})
	}),
)
