package hub

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

// Module wires the Hub into the application's fx graph, in the style
// of the teacher's registry.Module (webitel-im-delivery-service
// internal/domain/registry/module.go).
var Module = fx.Module("hub",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// Params are the fx-injected dependencies used to construct the Hub.
type Params struct {
	fx.In

	Logger *slog.Logger
	Opts   []Option `optional:"true"`
}

// NewFromParams adapts New to fx's dependency-injected Params.
func NewFromParams(p Params) *Hub {
	return New(p.Logger, p.Opts...)
}

func registerLifecycle(lc fx.Lifecycle, h *Hub) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			h.Stop()
			return nil
		},
	})
}
