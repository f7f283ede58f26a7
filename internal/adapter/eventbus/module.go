package eventbus

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"
)

// Params configures the bus connection. AMQPURI is optional; an empty
// value disables eventbus wiring entirely (single-instance deployments
// have no cross-node fan-out to do).
type Params struct {
	fx.In
	AMQPURI string `name:"eventbusAMQPURI" optional:"true"`
}

func newPublisher(logger *slog.Logger, p Params) (message.Publisher, error) {
	if p.AMQPURI == "" {
		return disabledPublisher{}, nil
	}
	return amqp.NewPublisher(amqp.NewDurablePubSubConfig(p.AMQPURI, nil), watermill.NewSlogLogger(logger))
}

func newSubscriber(logger *slog.Logger, p Params) (message.Subscriber, error) {
	if p.AMQPURI == "" {
		return nil, nil
	}
	nodeID, err := os.Hostname()
	if err != nil {
		nodeID = watermill.NewShortUUID()
	}
	cfg := amqp.NewDurablePubSubConfig(p.AMQPURI, amqp.GenerateQueueNameTopicNameWithSuffix(nodeID))
	return amqp.NewSubscriber(cfg, watermill.NewSlogLogger(logger))
}

func newRouter(logger *slog.Logger) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
}

func registerLifecycle(lc fx.Lifecycle, logger *slog.Logger, router *message.Router, sub message.Subscriber, ig *Ingest, p Params) {
	if p.AMQPURI == "" || sub == nil {
		return
	}
	router.AddNoPublisherHandler("eventbus-ingest", "fanout.channel.events", sub, ig.Handler())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("eventbus: router run error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Close()
		},
	})
}

// disabledPublisher is a no-op Publisher used when no bus URI is
// configured, so MirroringPublisher.Publish still succeeds locally.
type disabledPublisher struct{}

func (disabledPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (disabledPublisher) Close() error                                            { return nil }

// Module wires the bus publisher, subscriber, ingest adapter, and
// mirroring publisher into the fx graph.
var Module = fx.Module("eventbus",
	fx.Provide(
		newPublisher,
		newSubscriber,
		newRouter,
		NewDispatcher,
		NewIngest,
		NewMirroringPublisher,
	),
	fx.Invoke(registerLifecycle),
)
