// Package hub implements the Fan-Out Hub: the connection registry,
// subscription directory, per-channel ring-buffer history, and
// at-most-once fan-out dispatch at the center of the control plane.
//
// Grounded on the teacher's registry.Hub (webitel-im-delivery-service
// internal/domain/registry/hub.go): sync.Map for lock-free connection
// lookup, a functional-options constructor, and a background janitor
// goroutine. Generalized from a single per-user broadcast target to a
// channel-keyed subscription index with bounded, cursor-addressed
// per-channel history, since this Hub fans out by topic rather than by
// recipient identity.
package hub

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	domainchannel "github.com/flywheel-gateway/control-plane/internal/domain/channel"
	"github.com/flywheel-gateway/control-plane/internal/domain/message"
	"github.com/flywheel-gateway/control-plane/internal/ringbuffer"
)

type buffer = ringbuffer.RingBuffer[message.HubMessage]

// Hub is the concrete, concurrency-safe implementation of the Fan-Out
// Hub described in spec §4.2. The zero value is not usable; construct
// with New.
type Hub struct {
	logger *slog.Logger
	cfg    config

	connections sync.Map // connectionId -> *Connection

	subsMu sync.RWMutex
	subs   map[string]map[string]struct{} // channel -> set<connectionId>

	buffersMu sync.RWMutex
	buffers   map[string]*buffer // channel -> ring buffer

	totalMessages uint64
	sendFailures  uint64

	statsMu       sync.Mutex
	lastDropAt    time.Time
	statsSince    time.Time
	messagesAtRef uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Hub and starts its heartbeat and cleanup loops.
// Stop must be called to release them.
func New(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Hub{
		logger:     logger,
		cfg:        cfg,
		subs:       make(map[string]map[string]struct{}),
		buffers:    make(map[string]*buffer),
		statsSince: time.Now(),
		stopCh:     make(chan struct{}),
	}

	h.wg.Add(2)
	go h.heartbeatLoop()
	go h.cleanupLoop()

	return h
}

// Stop halts the background loops and force-closes every connection,
// used both in tests and as the final step of the drain shutdown
// sequence (spec §4.4).
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	h.connections.Range(func(_, value any) bool {
		conn := value.(*Connection)
		conn.terminate(1001, "server shutting down")
		return true
	})
}

// ConnectionCount reports the number of currently registered
// connections, as reported in Stats.
func (h *Hub) ConnectionCount() int {
	n := 0
	h.connections.Range(func(_, _ any) bool { n++; return true })
	return n
}

// AddConnection registers a new connection over the given transport and
// emits the connected frame (spec §4.2 addConnection).
func (h *Hub) AddConnection(id string, auth any, t Transport) *Connection {
	conn := newConnection(id, auth, t, h.cfg.mailboxSize, h.cfg.maxPendingAcks, h.removeConnectionDead)
	h.connections.Store(id, conn)

	conn.enqueue(ConnectedFrame{
		Type:         "connected",
		ConnectionID: id,
		ServerTime:   time.Now().UTC().Format(time.RFC3339Nano),
		Capabilities: Capabilities{
			Backfill:       true,
			Compression:    false,
			Acknowledgment: true,
		},
		HeartbeatIntervalMs: h.cfg.heartbeatInterval.Milliseconds(),
	})

	return conn
}

// removeConnectionDead is the onDead callback wired into every
// Connection; it mirrors RemoveConnection without re-closing the
// transport (already closed by the connection itself).
func (h *Hub) removeConnectionDead(id string, _ int, _ string) {
	h.purgeConnection(id)
}

// RemoveConnection removes a connection and purges it from every
// subscription index and pending-ack bookkeeping (spec §4.2
// removeConnection).
func (h *Hub) RemoveConnection(id string) {
	h.purgeConnection(id)
}

func (h *Hub) purgeConnection(id string) {
	val, ok := h.connections.LoadAndDelete(id)
	if !ok {
		return
	}
	conn := val.(*Connection)
	for channel := range conn.snapshotSubscriptions() {
		h.removeSubscriber(channel, id)
	}
}

// CloseConnection closes the transport then removes the connection
// (spec §4.2 closeConnection).
func (h *Hub) CloseConnection(id string, code int, reason string) {
	if val, ok := h.connections.Load(id); ok {
		conn := val.(*Connection)
		conn.terminate(code, reason)
	}
	h.purgeConnection(id)
}

func (h *Hub) connection(id string) (*Connection, bool) {
	val, ok := h.connections.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Connection), true
}

func (h *Hub) addSubscriber(channel, id string) {
	h.subsMu.Lock()
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[string]struct{})
		h.subs[channel] = set
	}
	set[id] = struct{}{}
	h.subsMu.Unlock()
}

func (h *Hub) removeSubscriber(channel, id string) {
	h.subsMu.Lock()
	if set, ok := h.subs[channel]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.subs, channel)
		}
	}
	h.subsMu.Unlock()
}

func (h *Hub) subscriberCount(channel string) int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) subscribersOf(channel string) []string {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	set := h.subs[channel]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// bufferFor returns the channel's ring buffer, creating it lazily using
// the prefix policy table (spec §4.1, §4.2 "Publishing to a channel
// with no buffer creates it lazily").
func (h *Hub) bufferFor(ch domainchannel.Channel) *buffer {
	key := ch.String()

	h.buffersMu.RLock()
	b, ok := h.buffers[key]
	h.buffersMu.RUnlock()
	if ok {
		return b
	}

	h.buffersMu.Lock()
	defer h.buffersMu.Unlock()
	if b, ok := h.buffers[key]; ok {
		return b
	}
	policy := ch.Policy()
	b = ringbuffer.New[message.HubMessage](policy.Capacity, policy.TTL)
	h.buffers[key] = b
	return b
}

func (h *Hub) existingBuffer(channel string) (*buffer, bool) {
	h.buffersMu.RLock()
	defer h.buffersMu.RUnlock()
	b, ok := h.buffers[channel]
	return b, ok
}

// SubscribeResult is returned by Subscribe (spec §4.2's
// "{cursor?, missed?}" contract), enriched with the delivered messages
// so callers (the WS handler, handleReconnect) can forward them without
// a second round-trip to the buffer.
type SubscribeResult struct {
	Cursor  string
	Missed  []message.HubMessage
	Expired bool
}

// Subscribe registers connection id's subscription to channel, replays
// any catch-up window implied by cursor, and sends the subscribed frame
// plus any missed message frames (spec §4.2 subscribe).
func (h *Hub) Subscribe(id, channelRaw string, cursor *message.Cursor) (SubscribeResult, error) {
	ch, err := domainchannel.ParseCached(channelRaw)
	if err != nil {
		return SubscribeResult{}, errInvalidChannel(channelRaw)
	}
	conn, ok := h.connection(id)
	if !ok {
		return SubscribeResult{}, ErrUnknownConnection
	}

	buf := h.bufferFor(ch)
	h.addSubscriber(ch.String(), id)

	result := SubscribeResult{}
	if cursor != nil {
		if buf.IsValidCursor(*cursor) {
			result.Missed = buf.Slice(*cursor, 0)
		} else {
			result.Missed = buf.GetAll(0)
			result.Expired = true
		}
	}

	var lastCursor message.Cursor
	switch {
	case len(result.Missed) > 0:
		lastCursor, _ = buf.LatestCursor()
	case cursor != nil:
		lastCursor = *cursor
	default:
		lastCursor, _ = buf.LatestCursor()
	}
	result.Cursor = lastCursor.String()
	conn.setSubscription(ch.String(), lastCursor)

	conn.enqueue(SubscribedFrame{Type: "subscribed", Channel: ch.String(), Cursor: result.Cursor})
	h.deliverMissed(conn, ch, result.Missed)

	return result, nil
}

func (h *Hub) deliverMissed(conn *Connection, ch domainchannel.Channel, missed []message.HubMessage) {
	if len(missed) == 0 {
		return
	}
	ackRequired := ch.AckRequired()
	for _, msg := range missed {
		conn.enqueue(MessageFrame{Type: "message", Message: msg, AckRequired: ackRequired})
		if ackRequired {
			conn.addPendingAck(msg)
		}
	}
}

// Unsubscribe removes connection id's subscription to channel (spec
// §4.2 unsubscribe).
func (h *Hub) Unsubscribe(id, channelRaw string) error {
	ch, err := domainchannel.ParseCached(channelRaw)
	if err != nil {
		return errInvalidChannel(channelRaw)
	}
	conn, ok := h.connection(id)
	if !ok {
		return ErrUnknownConnection
	}
	h.removeSubscriber(ch.String(), id)
	conn.removeSubscription(ch.String())
	conn.enqueue(UnsubscribedFrame{Type: "unsubscribed", Channel: ch.String()})
	return nil
}

// Publish builds a HubMessage, pushes it into the channel's buffer, and
// fans it out to every current subscriber (spec §4.2 publish).
func (h *Hub) Publish(channelRaw, typ string, payload any, meta *message.Metadata) (message.HubMessage, error) {
	ch, err := domainchannel.ParseCached(channelRaw)
	if err != nil {
		return message.HubMessage{}, errInvalidChannel(channelRaw)
	}

	msg := message.New(ch.String(), typ, payload, meta)
	buf := h.bufferFor(ch)
	cur := buf.Push(msg)
	msg = msg.WithCursor(cur)
	atomic.AddUint64(&h.totalMessages, 1)

	ackRequired := ch.AckRequired()
	for _, id := range h.subscribersOf(ch.String()) {
		h.deliverOne(id, ch, msg, cur, ackRequired)
	}

	return msg, nil
}

// deliverOne sends msg to a single subscriber, isolating a panic in one
// subscriber's delivery path from the rest of the fan-out (spec §7
// "Panics in a fan-out for one subscriber must not affect others").
func (h *Hub) deliverOne(id string, ch domainchannel.Channel, msg message.HubMessage, cur message.Cursor, ackRequired bool) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&h.sendFailures, 1)
			h.logger.Error("hub: recovered panic in fan-out", "connection_id", id, "channel", ch.String(), "panic", r)
		}
	}()

	conn, ok := h.connection(id)
	if !ok {
		return
	}
	if !conn.enqueue(MessageFrame{Type: "message", Message: msg, AckRequired: ackRequired}) {
		atomic.AddUint64(&h.sendFailures, 1)
		h.markDrop()
		return
	}
	conn.setSubscription(ch.String(), cur)
	if ackRequired {
		conn.addPendingAck(msg)
	}
}

func (h *Hub) markDrop() {
	h.statsMu.Lock()
	h.lastDropAt = time.Now()
	h.statsMu.Unlock()
}

// HandleAck removes the given message ids from connection id's pending
// acks (spec §4.2 handleAck).
func (h *Hub) HandleAck(id string, messageIDs []string) (acknowledged, notFound []string, err error) {
	conn, ok := h.connection(id)
	if !ok {
		return nil, nil, ErrUnknownConnection
	}
	acknowledged, notFound = conn.ack(messageIDs)
	conn.enqueue(AckResponseFrame{Type: "ack_response", Acknowledged: acknowledged, NotFound: notFound})
	return acknowledged, notFound, nil
}

// ReplayPendingAcks re-sends every still-pending message for a
// connection (spec §4.2 replayPendingAcks).
func (h *Hub) ReplayPendingAcks(id string) (int, error) {
	conn, ok := h.connection(id)
	if !ok {
		return 0, ErrUnknownConnection
	}
	return conn.replayPending(), nil
}

// ReplayResult is the stateless catch-up response (spec §4.2 replay).
type ReplayResult struct {
	Messages   []message.HubMessage
	HasMore    bool
	LastCursor string
	Expired    bool
}

// Replay is a stateless, connection-independent catch-up read (spec
// §4.2 replay). Unlike Subscribe it never registers a subscription or
// sends frames.
func (h *Hub) Replay(channelRaw string, cursor *message.Cursor, limit int) (ReplayResult, error) {
	if limit <= 0 {
		limit = 100
	}
	ch, err := domainchannel.ParseCached(channelRaw)
	if err != nil {
		return ReplayResult{}, errInvalidChannel(channelRaw)
	}

	buf, ok := h.existingBuffer(ch.String())
	if !ok {
		return ReplayResult{}, nil
	}

	expired := false
	var items []message.HubMessage
	if cursor != nil {
		if buf.IsValidCursor(*cursor) {
			items = buf.Slice(*cursor, limit+1)
		} else {
			items = buf.GetAll(limit + 1)
			expired = true
		}
	} else {
		items = buf.GetAll(limit + 1)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	result := ReplayResult{Messages: items, HasMore: hasMore, Expired: expired}
	if len(items) > 0 {
		result.LastCursor = items[len(items)-1].Cursor
	}
	return result, nil
}

// ReconnectResult mirrors handleReconnect's contract.
type ReconnectResult struct {
	Replayed            map[string]int
	Expired             []string
	NewCursors          map[string]string
	PendingAcksReplayed int
}

// HandleReconnect resubscribes to every channel in cursorsByChannel
// concurrently (reusing Subscribe; each channel carries independent
// ring-buffer and subscription-index state, and Connection guards its
// own fields with a mutex, so the per-channel resubscriptions don't
// contend beyond that), then replays any still-pending acks (spec §4.2
// handleReconnect). A nil cursor for a channel means "no cursor known"
// (spec's "behave as if the cursor were absent" on decode failure),
// which Subscribe treats as a fresh subscribe rather than an expired
// one.
func (h *Hub) HandleReconnect(id string, cursorsByChannel map[string]*message.Cursor) (ReconnectResult, error) {
	if _, ok := h.connection(id); !ok {
		return ReconnectResult{}, ErrUnknownConnection
	}

	result := ReconnectResult{
		Replayed:   make(map[string]int),
		NewCursors: make(map[string]string),
	}
	var mu sync.Mutex

	var g errgroup.Group
	for channel, cursor := range cursorsByChannel {
		channel, cursor := channel, cursor
		g.Go(func() error {
			sub, err := h.Subscribe(id, channel, cursor)
			if err != nil {
				return nil
			}
			mu.Lock()
			result.Replayed[channel] = len(sub.Missed)
			result.NewCursors[channel] = sub.Cursor
			if sub.Expired {
				result.Expired = append(result.Expired, channel)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	replayed, _ := h.ReplayPendingAcks(id)
	result.PendingAcksReplayed = replayed

	if conn, ok := h.connection(id); ok {
		conn.enqueue(ReconnectAckFrame{
			Type:                "reconnect_ack",
			Replayed:            result.Replayed,
			Expired:             result.Expired,
			NewCursors:          result.NewCursors,
			PendingAcksReplayed: result.PendingAcksReplayed,
		})
	}

	return result, nil
}

// UpdateHeartbeat refreshes a connection's lastHeartbeatAt and sends a
// pong carrying its current subscriptions and cursors (spec §4.5).
func (h *Hub) UpdateHeartbeat(id string, clientTimestamp int64) error {
	conn, ok := h.connection(id)
	if !ok {
		return ErrUnknownConnection
	}
	conn.touchHeartbeat()

	subs := conn.snapshotSubscriptions()
	channels := make([]string, 0, len(subs))
	cursors := make(map[string]string, len(subs))
	for ch, cur := range subs {
		channels = append(channels, ch)
		cursors[ch] = cur.String()
	}

	conn.enqueue(PongFrame{
		Type:          "pong",
		Timestamp:     clientTimestamp,
		ServerTime:    time.Now().UTC().Format(time.RFC3339Nano),
		Subscriptions: channels,
		Cursors:       cursors,
	})
	return nil
}

// DeadConnections returns the ids of connections whose lastHeartbeatAt
// is older than timeout (spec §4.2 deadConnections).
func (h *Hub) DeadConnections(timeout time.Duration) []string {
	var dead []string
	h.connections.Range(func(key, value any) bool {
		conn := value.(*Connection)
		if conn.isDead(timeout) {
			dead = append(dead, key.(string))
		}
		return true
	})
	return dead
}

// Broadcast sends frame to every connection, returning the count of
// connections it was enqueued for (spec §4.2 broadcast).
func (h *Hub) Broadcast(frame any) int {
	n := 0
	h.connections.Range(func(_, value any) bool {
		conn := value.(*Connection)
		if conn.enqueue(frame) {
			n++
		}
		return true
	})
	return n
}

// SendToConnection sends frame to a single connection (spec §4.2
// sendToConnection).
func (h *Hub) SendToConnection(id string, frame any) bool {
	conn, ok := h.connection(id)
	if !ok {
		return false
	}
	return conn.enqueue(frame)
}

// Stats returns the diagnostic snapshot described in spec §4.2.
func (h *Hub) Stats() HubStats {
	connections := h.ConnectionCount()

	h.buffersMu.RLock()
	byPrefix := make(map[string]PrefixStats)
	var capacityEvictions, ttlExpirations uint64
	var utilizationSum float64
	for channelKey, buf := range h.buffers {
		ch, err := domainchannel.ParseCached(channelKey)
		prefix := channelKey
		if err == nil {
			prefix = ch.Prefix()
		}
		snap := buf.Snapshot()
		capacityEvictions += snap.CapacityEvictions
		ttlExpirations += snap.TTLExpirations
		utilizationSum += buf.Utilization()

		entry := byPrefix[prefix]
		entry.Buffers++
		entry.Utilization += buf.Utilization()
		entry.CapacityEvictions += snap.CapacityEvictions
		entry.TTLExpirations += snap.TTLExpirations
		byPrefix[prefix] = entry
	}
	channelCount := len(h.buffers)
	h.buffersMu.RUnlock()

	for prefix, entry := range byPrefix {
		entry.Connections = h.connectionsForPrefix(prefix)
		if entry.Buffers > 0 {
			entry.Utilization /= float64(entry.Buffers)
		}
		byPrefix[prefix] = entry
	}

	h.statsMu.Lock()
	elapsed := time.Since(h.statsSince).Seconds()
	total := atomic.LoadUint64(&h.totalMessages)
	var rate float64
	if elapsed > 0 {
		rate = float64(total-h.messagesAtRef) / elapsed
	}
	lastDrop := h.lastDropAt
	h.statsMu.Unlock()

	avgUtil := 0.0
	if channelCount > 0 {
		avgUtil = utilizationSum / float64(channelCount)
	}

	return HubStats{
		Connections:        connections,
		Channels:           channelCount,
		MessagesPerSecond:  math.Round(rate*100) / 100,
		TotalMessages:      total,
		SendFailures:       atomic.LoadUint64(&h.sendFailures),
		CapacityEvictions:  capacityEvictions,
		TTLExpirations:     ttlExpirations,
		LastDropAt:         lastDrop,
		AverageUtilization: avgUtil,
		ByPrefix:           byPrefix,
	}
}

func (h *Hub) connectionsForPrefix(prefix string) int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	seen := make(map[string]struct{})
	for channel, set := range h.subs {
		if !strings.HasPrefix(channel, prefix) {
			continue
		}
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// ResetMessageStats zeroes the rolling messages/second reference point
// (spec §4.2 resetMessageStats).
func (h *Hub) ResetMessageStats() {
	h.statsMu.Lock()
	h.statsSince = time.Now()
	h.messagesAtRef = atomic.LoadUint64(&h.totalMessages)
	h.statsMu.Unlock()
}

// PruneBuffers prunes expired entries from every buffer, returning the
// total removed (spec §4.2 pruneBuffers).
func (h *Hub) PruneBuffers() int {
	h.buffersMu.RLock()
	buffers := make([]*buffer, 0, len(h.buffers))
	for _, b := range h.buffers {
		buffers = append(buffers, b)
	}
	h.buffersMu.RUnlock()

	total := 0
	for _, b := range buffers {
		total += b.Prune()
	}
	return total
}

// PruneUnusedBuffers drops buffers with no subscribers and validSize==0
// (spec §4.2 pruneUnusedBuffers).
func (h *Hub) PruneUnusedBuffers() int {
	h.buffersMu.Lock()
	defer h.buffersMu.Unlock()

	removed := 0
	for channel, b := range h.buffers {
		if h.subscriberCount(channel) == 0 && b.ValidSize() == 0 {
			delete(h.buffers, channel)
			removed++
		}
	}
	return removed
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.Broadcast(HeartbeatFrame{Type: "heartbeat", ServerTime: time.Now().UTC().Format(time.RFC3339Nano)})
			for _, id := range h.DeadConnections(h.cfg.connectionTimeout) {
				h.CloseConnection(id, 4000, "heartbeat timeout")
			}
		}
	}
}

func (h *Hub) cleanupLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			pruned := h.PruneBuffers()
			dropped := h.PruneUnusedBuffers()
			if pruned > 0 || dropped > 0 {
				h.logger.Debug("hub: cleanup sweep", "pruned_entries", pruned, "dropped_buffers", dropped)
			}
		}
	}
}
