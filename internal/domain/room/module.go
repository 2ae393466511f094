package room

import "go.uber.org/fx"

// Module wires the Room Router for Fx composition.
var Module = fx.Module("room",
	fx.Provide(New),
)
