// Package message defines the immutable wire record the Hub fans out,
// and the opaque cursor used to address positions within a channel's
// ring buffer. Grounded on the teacher's Eventer/SystemEvent split
// (webitel-im-delivery-service internal/domain/event), generalized from
// a single UserID-routed event to a channel-routed one since this Hub
// fans out by channel, not by a single recipient.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Metadata carries optional correlation fields a producer may attach.
type Metadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
}

// HubMessage is the immutable record owned by a channel's ring buffer
// from insertion until eviction or TTL expiry (spec §3).
type HubMessage struct {
	ID        string    `json:"id"`
	Cursor    string    `json:"cursor"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// New builds a HubMessage with a fresh opaque id and the current
// timestamp. The cursor field is populated by the ring buffer on push,
// not here — a message has no cursor until it is actually inserted.
func New(channel, typ string, payload any, meta *Metadata) HubMessage {
	return HubMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Channel:   channel,
		Type:      typ,
		Payload:   payload,
		Metadata:  meta,
	}
}

// WithCursor returns a copy of m with Cursor set to c's wire form.
// Ring buffers use this to stamp a message immediately after assigning
// its sequence, keeping HubMessage itself free of ring-buffer internals.
func (m HubMessage) WithCursor(c Cursor) HubMessage {
	m.Cursor = c.String()
	return m
}
