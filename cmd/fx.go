package cmd

import (
	"log/slog"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/flywheel-gateway/control-plane/config"
	"github.com/flywheel-gateway/control-plane/internal/adapter/eventbus"
	"github.com/flywheel-gateway/control-plane/internal/drain"
	"github.com/flywheel-gateway/control-plane/internal/hub"
	"github.com/flywheel-gateway/control-plane/internal/idempotency"
	"github.com/flywheel-gateway/control-plane/internal/transport/httpapi"
	"github.com/flywheel-gateway/control-plane/internal/transport/ws"
)

// NewApp assembles the fx graph for the control plane: config, logger,
// the Fan-Out Hub, the idempotency cache, the drain controller, the
// WebSocket and HTTP transports, and the (optional) cross-instance
// event bus. logger and drainCtl are populated from the graph so the
// shutdown sequence (spec §4.4) can run outside of an fx.Invoke.
func NewApp(logger **slog.Logger, drainCtl **drain.Controller, cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			provideLogger,
			provideHubOptions,
			provideIdempotencyParams,
			provideEventbusParams,
		),
		config.Module,
		drain.Module,
		hub.Module,
		idempotency.Module,
		eventbus.Module,
		ws.Module,
		httpapi.Module,
		fx.Invoke(registerIdempotencyReload),
		fx.Populate(logger, drainCtl, cfg),
	)
}

// registerIdempotencyReload applies a reloaded config's idempotency.ttlMs
// / idempotency.maxRecords to the already-constructed Cache, so editing
// the config file takes effect without a restart (spec §6.3).
func registerIdempotencyReload(watcher *config.Watcher, cache *idempotency.Cache) {
	watcher.OnChange(func(cfg config.Config) {
		cache.UpdateLimits(cfg.IdempotencyTTL(), cfg.Idempotency.MaxRecords)
	})
}

func provideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func provideHubOptions(cfg config.Config) []hub.Option {
	return []hub.Option{
		hub.WithHeartbeatInterval(cfg.HeartbeatInterval()),
		hub.WithConnectionTimeout(cfg.ConnectionTimeout()),
	}
}

type idempotencyParamsOut struct {
	fx.Out
	TTL        time.Duration `name:"idempotencyTTL"`
	MaxRecords int           `name:"idempotencyMaxRecords"`
}

func provideIdempotencyParams(cfg config.Config) idempotencyParamsOut {
	return idempotencyParamsOut{
		TTL:        cfg.IdempotencyTTL(),
		MaxRecords: cfg.Idempotency.MaxRecords,
	}
}

type eventbusParamsOut struct {
	fx.Out
	AMQPURI string `name:"eventbusAMQPURI"`
}

func provideEventbusParams(cfg config.Config) eventbusParamsOut {
	return eventbusParamsOut{AMQPURI: cfg.Eventbus.AMQPURI}
}
