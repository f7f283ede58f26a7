package ws

import "go.uber.org/fx"

// Module wires the WebSocket Handler into the fx graph.
var Module = fx.Module("transport_ws",
	fx.Provide(NewHandler),
)
