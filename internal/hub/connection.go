package hub

import (
	"sync"
	"time"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
)

// Transport is the minimal surface a connection needs from its
// underlying wire protocol. internal/transport/ws implements this over
// a gorilla/websocket connection; tests use an in-memory fake.
type Transport interface {
	WriteFrame(frame any) error
	Close(code int, reason string) error
}

// pendingAck is a sent, not-yet-acknowledged message (spec §3
// PendingRequest analogue for ack-required channels).
type pendingAck struct {
	message     message.HubMessage
	sentAt      time.Time
	replayCount int
}

// Connection is the per-connection actor: one mailbox, one delivery
// loop, one owner of its own subscriptions/pendingAcks maps. Grounded
// on the teacher's Cell actor (webitel-im-delivery-service
// internal/domain/registry/cell.go) fused with its connect struct
// (registry/connect.go), generalized from one mailbox per *user* (with
// N attached sessions) to one mailbox per *connection*, since this Hub's
// unit of fan-out bookkeeping — cursors, pending acks, subscriptions —
// is the connection itself (spec §3 "Connection").
type Connection struct {
	id          string
	connectedAt time.Time
	auth        any
	transport   Transport

	mu              sync.Mutex
	subscriptions   map[string]message.Cursor // channel -> lastDeliveredCursor
	pendingAcks     map[string]*pendingAck
	lastHeartbeatAt time.Time
	sendFailures    uint64
	closed          bool

	mailbox chan any
	onDead  func(id string, code int, reason string)
	done    chan struct{}

	maxPendingAcks int
}

func newConnection(id string, auth any, t Transport, mailboxSize, maxPendingAcks int, onDead func(id string, code int, reason string)) *Connection {
	c := &Connection{
		id:              id,
		connectedAt:     time.Now().UTC(),
		auth:            auth,
		transport:       t,
		subscriptions:   make(map[string]message.Cursor),
		pendingAcks:     make(map[string]*pendingAck),
		lastHeartbeatAt: time.Now(),
		mailbox:         make(chan any, mailboxSize),
		onDead:          onDead,
		done:            make(chan struct{}),
		maxPendingAcks:  maxPendingAcks,
	}
	go c.loop()
	return c
}

// ID returns the opaque connectionId.
func (c *Connection) ID() string { return c.id }

// ConnectedAt returns the immutable admission timestamp.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// enqueue is the single non-blocking send path shared by fan-out and
// direct sends. On overflow the connection is closed rather than
// blocking the publisher (spec §5).
func (c *Connection) enqueue(frame any) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.mailbox <- frame:
		return true
	default:
		go c.writeThrottled("outbound queue overflow")
		go c.terminate(4008, string(CodeRateLimited)+": outbound queue overflow")
		return false
	}
}

// writeThrottled best-effort writes a ThrottledFrame directly to the
// transport (bypassing the mailbox, which may itself be the thing
// that's full), so the client has a diagnosable signal alongside the
// hard close (spec §7 WS_RATE_LIMITED / throttled). Run in its own
// goroutine by callers since the transport write may block and this
// must never hold up the publisher or the caller of addPendingAck. The
// close runs in a separate goroutine, so the frame may reach the client
// before or after the close, or not at all.
func (c *Connection) writeThrottled(reason string) {
	_ = c.transport.WriteFrame(ThrottledFrame{
		Type:          "throttled",
		Message:       reason,
		ResumeAfterMs: 5000,
	})
}

// loop is the delivery goroutine: batch-drain the mailbox onto the
// transport, in the teacher's Cell.loop style.
func (c *Connection) loop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.mailbox:
			c.write(frame)
		drain:
			for range 64 {
				select {
				case next := <-c.mailbox:
					c.write(next)
				default:
					break drain
				}
			}
		}
	}
}

func (c *Connection) write(frame any) {
	if err := c.transport.WriteFrame(frame); err != nil {
		c.mu.Lock()
		c.sendFailures++
		c.mu.Unlock()
	}
}

// terminate closes the transport and notifies the owning Hub so it can
// remove this connection. Safe to call multiple times.
func (c *Connection) terminate(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	_ = c.transport.Close(code, reason)
	if c.onDead != nil {
		c.onDead(c.id, code, reason)
	}
}

func (c *Connection) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeatAt = time.Now()
	c.mu.Unlock()
}

func (c *Connection) isDead(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastHeartbeatAt) > timeout
}

// setSubscription registers or updates a channel's lastDeliveredCursor.
func (c *Connection) setSubscription(channel string, cursor message.Cursor) {
	c.mu.Lock()
	c.subscriptions[channel] = cursor
	c.mu.Unlock()
}

func (c *Connection) removeSubscription(channel string) {
	c.mu.Lock()
	delete(c.subscriptions, channel)
	c.mu.Unlock()
}

func (c *Connection) subscribedCursor(channel string) (message.Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.subscriptions[channel]
	return cur, ok
}

func (c *Connection) snapshotSubscriptions() map[string]message.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]message.Cursor, len(c.subscriptions))
	for k, v := range c.subscriptions {
		out[k] = v
	}
	return out
}

// addPendingAck inserts a newly delivered ack-required message. If the
// connection is already at the recommended cap, it is closed instead
// (spec §4.2 "implementers SHOULD cap per-connection pending acks").
func (c *Connection) addPendingAck(msg message.HubMessage) {
	c.mu.Lock()
	if len(c.pendingAcks) >= c.maxPendingAcks {
		c.mu.Unlock()
		go c.writeThrottled("pending ack cap exceeded")
		go c.terminate(4009, string(CodeRateLimited)+": pending ack cap exceeded")
		return
	}
	c.pendingAcks[msg.ID] = &pendingAck{message: msg, sentAt: time.Now()}
	c.mu.Unlock()
}

// ack removes the given message ids from pendingAcks, reporting which
// were present.
func (c *Connection) ack(ids []string) (acknowledged, notFound []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.pendingAcks[id]; ok {
			delete(c.pendingAcks, id)
			acknowledged = append(acknowledged, id)
		} else {
			notFound = append(notFound, id)
		}
	}
	return acknowledged, notFound
}

// replayPending re-sends every still-pending message, bumping
// replayCount and resetting sentAt, returning the number replayed.
func (c *Connection) replayPending() int {
	c.mu.Lock()
	pending := make([]*pendingAck, 0, len(c.pendingAcks))
	for _, p := range c.pendingAcks {
		p.replayCount++
		p.sentAt = time.Now()
		pending = append(pending, p)
	}
	c.mu.Unlock()

	for _, p := range pending {
		c.enqueue(MessageFrame{Type: "message", Message: p.message, AckRequired: true})
	}
	return len(pending)
}
