package eventbus

import (
	"context"

	domainmessage "github.com/flywheel-gateway/control-plane/internal/domain/message"
	"github.com/flywheel-gateway/control-plane/internal/hub"
)

// MirroringPublisher publishes to the local Hub and mirrors the result
// onto the bus, so callers that need cross-instance fan-out (rather than
// Hub.Publish directly, which is local-only) have a single entry point.
// Ingest.Handler deliberately does NOT go through this type: a message
// arriving off the bus is only ever applied locally, never re-mirrored,
// or every instance would re-publish it back onto the bus forever.
type MirroringPublisher struct {
	hub        *hub.Hub
	dispatcher Dispatcher
}

// NewMirroringPublisher constructs a MirroringPublisher.
func NewMirroringPublisher(h *hub.Hub, d Dispatcher) *MirroringPublisher {
	return &MirroringPublisher{hub: h, dispatcher: d}
}

// Publish applies msg to the local Hub then mirrors it onto the bus. A
// dispatcher failure is reported but does not unwind the local publish,
// since local subscribers have already been served.
func (p *MirroringPublisher) Publish(ctx context.Context, channel, typ string, payload any, meta *domainmessage.Metadata) (domainmessage.HubMessage, error) {
	msg, err := p.hub.Publish(channel, typ, payload, meta)
	if err != nil {
		return domainmessage.HubMessage{}, err
	}
	mirrorErr := p.dispatcher.Publish(ctx, msg)
	return msg, mirrorErr
}
