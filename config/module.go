package config

import "go.uber.org/fx"

// Module provides the loaded Config plus a live-reload Watcher to the
// fx graph. Consumers that only need the values at construction time
// can depend on Config alone; consumers that can apply changes without
// a restart depend on *Watcher too and call its OnChange.
var Module = fx.Module("config",
	fx.Provide(LoadWatched),
)
