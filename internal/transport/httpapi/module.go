package httpapi

import "go.uber.org/fx"

// Module wires the Router and the composed HTTP server (router + /ws
// upgrade handler) into the fx graph.
var Module = fx.Module("transport_httpapi",
	fx.Provide(NewRouter, NewServer),
	fx.Invoke(RegisterLifecycle),
)
