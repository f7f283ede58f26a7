// Package eventbus bridges the Hub to an external message bus, so that
// a Publish on one process instance can be mirrored out to, and ingested
// from, other instances sharing the same channel namespace.
//
// Grounded on the teacher's internal/adapter/pubsub (EventDispatcher
// wrapping a watermill message.Publisher) and internal/handler/amqp
// (Bind/router.go), generalized from a fixed per-user routing key to an
// arbitrary channel string, and from fan-out-to-hub-and-bus to
// publish-then-mirror symmetry: every local Hub.Publish is mirrored
// outward, and everything read off the bus is fed back into the local
// Hub so its subscribers receive it exactly like a local publish.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"

	domainmessage "github.com/flywheel-gateway/control-plane/internal/domain/message"
)

const channelHeader = "x-channel"

// Dispatcher mirrors locally published messages onto the bus.
type Dispatcher interface {
	Publish(ctx context.Context, msg domainmessage.HubMessage) error
}

// breakerDispatcher wraps a watermill publisher with a circuit breaker
// (spec §1's durability goals name graceful degradation under outbound
// broker failure; the teacher's go.mod already carries sony/gobreaker
// for exactly this purpose, though its concrete wiring lived in an
// infra/pubsub/factory.go not present in the retrieved excerpt).
type breakerDispatcher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher publishing onto topic via pub,
// circuit-broken so a sustained run of publish failures trips open and
// fails fast instead of blocking every subsequent Publish call.
func NewDispatcher(logger *slog.Logger, pub message.Publisher) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "eventbus-dispatcher",
		MaxRequests: 1,
		Interval:    0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerDispatcher{
		publisher: pub,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

func (d *breakerDispatcher) Publish(ctx context.Context, msg domainmessage.HubMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("eventbus: marshal failure: %w", err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.SetContext(ctx)
	wm.Metadata.Set(channelHeader, msg.Channel)

	_, err = d.breaker.Execute(func() (any, error) {
		return nil, d.publisher.Publish(topicForChannel(msg.Channel), wm)
	})
	if err != nil {
		d.logger.Warn("eventbus: publish failed", "channel", msg.Channel, "error", err)
		return fmt.Errorf("eventbus: publish to %s: %w", msg.Channel, err)
	}
	return nil
}

// topicForChannel maps a hub channel string to its bus topic. Every
// channel shares one topic; the channel itself travels in the
// x-channel header so a single exchange carries the whole namespace.
func topicForChannel(_ string) string {
	return "fanout.channel.events"
}
