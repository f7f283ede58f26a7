package idempotency

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// Module wires the Idempotency Cache into the fx graph.
var Module = fx.Module("idempotency",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// Params are the fx-injected construction dependencies.
type Params struct {
	fx.In

	TTL        time.Duration `name:"idempotencyTTL" optional:"true"`
	MaxRecords int           `name:"idempotencyMaxRecords" optional:"true"`
}

// NewFromParams adapts New to fx's dependency-injected Params.
func NewFromParams(p Params) *Cache {
	return New(p.TTL, p.MaxRecords)
}

func registerLifecycle(lc fx.Lifecycle, c *Cache) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			c.Stop()
			return nil
		},
	})
}
