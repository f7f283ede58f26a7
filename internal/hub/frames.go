package hub

import "github.com/flywheel-gateway/control-plane/internal/domain/message"

// The frame types below are the server → client shapes of spec §6.1.
// Each is a flat JSON object carrying its own "type" discriminator;
// internal/transport/ws marshals these verbatim onto the wire.

// Capabilities advertises optional protocol features in the connected
// frame.
type Capabilities struct {
	Backfill       bool `json:"backfill"`
	Compression    bool `json:"compression"`
	Acknowledgment bool `json:"acknowledgment"`
}

// ConnectedFrame is emitted once, immediately after admission.
type ConnectedFrame struct {
	Type                string       `json:"type"`
	ConnectionID        string       `json:"connectionId"`
	ServerTime          string       `json:"serverTime"`
	ServerVersion       string       `json:"serverVersion,omitempty"`
	Capabilities        Capabilities `json:"capabilities,omitempty"`
	HeartbeatIntervalMs int64        `json:"heartbeatIntervalMs,omitempty"`
}

// SubscribedFrame acknowledges a successful subscribe.
type SubscribedFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Cursor  string `json:"cursor,omitempty"`
}

// UnsubscribedFrame acknowledges a successful unsubscribe.
type UnsubscribedFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// MessageFrame carries one fanned-out HubMessage.
type MessageFrame struct {
	Type        string             `json:"type"`
	Message     message.HubMessage `json:"message"`
	AckRequired bool               `json:"ackRequired,omitempty"`
}

// BackfillResponseFrame answers a backfill request.
type BackfillResponseFrame struct {
	Type       string               `json:"type"`
	Channel    string               `json:"channel"`
	Messages   []message.HubMessage `json:"messages"`
	LastCursor string               `json:"lastCursor,omitempty"`
	HasMore    bool                 `json:"hasMore"`
}

// PongFrame answers a client ping.
type PongFrame struct {
	Type          string            `json:"type"`
	Timestamp     int64             `json:"timestamp"`
	ServerTime    string            `json:"serverTime"`
	Subscriptions []string          `json:"subscriptions"`
	Cursors       map[string]string `json:"cursors"`
}

// HeartbeatFrame is broadcast on the periodic heartbeat loop.
type HeartbeatFrame struct {
	Type       string `json:"type"`
	ServerTime string `json:"serverTime"`
}

// ReconnectAckFrame answers a reconnect request.
type ReconnectAckFrame struct {
	Type                string            `json:"type"`
	Replayed            map[string]int    `json:"replayed"`
	Expired             []string          `json:"expired"`
	NewCursors          map[string]string `json:"newCursors"`
	PendingAcksReplayed int               `json:"pendingAcksReplayed,omitempty"`
}

// AckResponseFrame answers a client ack.
type AckResponseFrame struct {
	Type         string   `json:"type"`
	Acknowledged []string `json:"acknowledged"`
	NotFound     []string `json:"notFound"`
}

// ErrorFrame is the generic wire error shape (spec §7).
type ErrorFrame struct {
	Type     string   `json:"type"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Channel  string   `json:"channel,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// ThrottledFrame signals backpressure to the client.
type ThrottledFrame struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	ResumeAfterMs int64  `json:"resumeAfterMs"`
}
