package ws

import "go.uber.org/fx"

// Module wires the WebSocket transport handler for Fx composition.
var Module = fx.Module("transport-ws",
	fx.Provide(NewHandler),
)
