// Package ws implements the bidirectional framed-JSON transport of
// spec §6.1 over gorilla/websocket, translating wire frames into Hub
// operations and Hub frames back onto the wire.
//
// Grounded on the teacher's WSHandler (webitel-im-delivery-service
// internal/handler/ws/delivery.go): upgrade-then-pump-loop shape,
// generalized from a single outbound stream driven by one source
// channel into a strict two-way protocol with client message parsing,
// since this transport's clients issue subscribe/ack/backfill/reconnect
// commands rather than only receiving a feed.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
)

// inboundFrame is the superset of fields across every client → server
// message type (spec §6.1). Parsing is strict: an unrecognized `type`
// or a type whose required fields are missing/malformed produces
// INVALID_FORMAT.
type inboundFrame struct {
	Type       string            `json:"type"`
	Channel    string            `json:"channel"`
	Cursor     string            `json:"cursor"`
	FromCursor string            `json:"fromCursor"`
	Limit      int               `json:"limit"`
	Timestamp  int64             `json:"timestamp"`
	Cursors    map[string]string `json:"cursors"`
	MessageIDs []string          `json:"messageIds"`
}

const (
	inboundSubscribe   = "subscribe"
	inboundUnsubscribe = "unsubscribe"
	inboundBackfill    = "backfill"
	inboundPing        = "ping"
	inboundReconnect   = "reconnect"
	inboundAck         = "ack"
)

// parseInbound decodes and validates one client frame.
func parseInbound(raw []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return inboundFrame{}, fmt.Errorf("malformed json: %w", err)
	}

	switch f.Type {
	case inboundSubscribe, inboundUnsubscribe, inboundBackfill:
		if f.Channel == "" {
			return inboundFrame{}, fmt.Errorf("%s requires channel", f.Type)
		}
	case inboundPing:
		// timestamp is optional in practice; no required fields.
	case inboundReconnect:
		if f.Cursors == nil {
			return inboundFrame{}, fmt.Errorf("reconnect requires cursors")
		}
	case inboundAck:
		if len(f.MessageIDs) == 0 {
			return inboundFrame{}, fmt.Errorf("ack requires non-empty messageIds")
		}
	default:
		return inboundFrame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// parseCursorField decodes an optional cursor field, treating a blank
// string as "no cursor" and a malformed one as absent per spec §4.1
// ("on cursor decode failure, operations behave as if the cursor were
// absent").
func parseCursorField(raw string) *message.Cursor {
	if raw == "" {
		return nil
	}
	cur, err := message.ParseCursor(raw)
	if err != nil {
		return nil
	}
	return &cur
}

// parseCursorsField decodes a reconnect frame's per-channel cursor map.
// A malformed cursor string is treated the same way parseCursorField
// treats one: as absent (nil), triggering a fresh subscribe to that
// channel rather than dropping the channel from the reconnect entirely.
func parseCursorsField(raw map[string]string) map[string]*message.Cursor {
	out := make(map[string]*message.Cursor, len(raw))
	for channel, s := range raw {
		out[channel] = parseCursorField(s)
	}
	return out
}
