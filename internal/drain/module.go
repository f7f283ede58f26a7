package drain

import "go.uber.org/fx"

// Module wires the Drain/Maintenance Controller into the fx graph. It
// has no OnStop hook of its own — shutdown orchestration lives in
// RunShutdownSequence, driven explicitly from cmd, not fx's own stop
// path, since draining must begin before fx starts tearing down its
// other modules.
var Module = fx.Module("drain",
	fx.Provide(New),
)
