package eventbus

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/flywheel-gateway/control-plane/internal/hub"
)

// Ingest feeds messages arriving on the bus back into the local Hub, so
// a Publish on one instance reaches subscribers connected to any other.
type Ingest struct {
	hub    *hub.Hub
	logger *slog.Logger
}

// NewIngest constructs an Ingest bound to hub h.
func NewIngest(logger *slog.Logger, h *hub.Hub) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{hub: h, logger: logger}
}

// Handler returns the watermill NoPublishHandlerFunc to register against
// the shared fan-out topic (grounded on the teacher's Bind: panic
// recovery, decode-or-ack, then domain dispatch).
func (ig *Ingest) Handler() message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ig.logger.Error("eventbus: panic recovered", "error", r, "stack", string(debug.Stack()))
			}
		}()

		channel := msg.Metadata.Get(channelHeader)
		if channel == "" {
			ig.logger.Warn("eventbus: message missing channel header, dropping", "msg_id", msg.UUID)
			return nil // ack: unroutable message is a terminal state
		}

		var incoming struct {
			Type    string `json:"type"`
			Payload any    `json:"payload"`
		}
		if err := json.Unmarshal(msg.Payload, &incoming); err != nil {
			ig.logger.Error("eventbus: decode failed", "error", err, "msg_id", msg.UUID)
			return nil // ack: poison-pill protection
		}

		if _, err := ig.hub.Publish(channel, incoming.Type, incoming.Payload, nil); err != nil {
			ig.logger.Warn("eventbus: local publish rejected inbound message", "channel", channel, "error", err)
			return nil // ack: an unknown/invalid channel on this node is not retryable
		}
		return nil
	}
}
