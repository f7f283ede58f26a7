package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flywheel-gateway/control-plane/internal/drain"
	"github.com/flywheel-gateway/control-plane/internal/hub"
)

// connTransport adapts a gorilla/websocket connection to hub.Transport.
// gorilla requires a single writer at a time; Connection already
// serializes writes through its own mailbox goroutine, but Close can
// race that goroutine's final write, so a mutex guards both.
type connTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *connTransport) WriteFrame(frame any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(frame)
}

func (t *connTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

// Handler upgrades HTTP requests to WebSocket connections and bridges
// the per-connection read pump into Hub operations.
type Handler struct {
	logger   *slog.Logger
	hub      *hub.Hub
	drain    *drain.Controller
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler. auth is left as an external
// collaborator (spec §1 "Out of scope": authentication) — callers may
// wrap Handler with their own auth middleware before it is reached.
func NewHandler(logger *slog.Logger, h *hub.Hub, d *drain.Controller) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger: logger,
		hub:    h,
		drain:  d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.drain.AllowWebSocketUpgrade() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"DRAINING","message":"server is draining"}}`))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	transport := &connTransport{conn: conn}
	h.hub.AddConnection(connectionID, r.Context().Value(authContextKey{}), transport)
	h.logger.Info("ws: connection opened", "connection_id", connectionID)

	defer func() {
		h.hub.RemoveConnection(connectionID)
		_ = conn.Close()
		h.logger.Info("ws: connection closed", "connection_id", connectionID)
	}()

	h.readPump(connectionID, conn)
}

// authContextKey is a placeholder extension point for the external auth
// collaborator (spec §1 Out of scope) to attach identity to the
// request context before it reaches Handler.
type authContextKey struct{}

func (h *Handler) readPump(connectionID string, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := parseInbound(raw)
		if err != nil {
			h.hub.SendToConnection(connectionID, hub.ErrorFrame{
				Type: "error", Code: hub.CodeInvalidFormat, Message: err.Error(), Severity: hub.SeverityRecoverable,
			})
			continue
		}

		h.dispatch(connectionID, frame)
	}
}

func (h *Handler) dispatch(connectionID string, frame inboundFrame) {
	switch frame.Type {
	case inboundSubscribe:
		h.handleSubscribe(connectionID, frame)
	case inboundUnsubscribe:
		if err := h.hub.Unsubscribe(connectionID, frame.Channel); err != nil {
			h.sendChannelError(connectionID, frame.Channel, err)
		}
	case inboundBackfill:
		h.handleBackfill(connectionID, frame)
	case inboundPing:
		_ = h.hub.UpdateHeartbeat(connectionID, frame.Timestamp)
	case inboundReconnect:
		h.handleReconnect(connectionID, frame)
	case inboundAck:
		if _, _, err := h.hub.HandleAck(connectionID, frame.MessageIDs); err != nil {
			h.hub.SendToConnection(connectionID, hub.ErrorFrame{
				Type: "error", Code: hub.CodeInternal, Message: err.Error(), Severity: hub.SeverityRetry,
			})
		}
	}
}

func (h *Handler) handleSubscribe(connectionID string, frame inboundFrame) {
	cursor := parseCursorField(frame.Cursor)
	if _, err := h.hub.Subscribe(connectionID, frame.Channel, cursor); err != nil {
		h.sendChannelError(connectionID, frame.Channel, err)
	}
}

func (h *Handler) handleBackfill(connectionID string, frame inboundFrame) {
	limit := frame.Limit
	if limit <= 0 {
		limit = 100
	}
	cursor := parseCursorField(frame.FromCursor)
	result, err := h.hub.Replay(frame.Channel, cursor, limit)
	if err != nil {
		h.sendChannelError(connectionID, frame.Channel, err)
		return
	}
	h.hub.SendToConnection(connectionID, hub.BackfillResponseFrame{
		Type:       "backfill_response",
		Channel:    frame.Channel,
		Messages:   result.Messages,
		LastCursor: result.LastCursor,
		HasMore:    result.HasMore,
	})
}

func (h *Handler) handleReconnect(connectionID string, frame inboundFrame) {
	cursors := parseCursorsField(frame.Cursors)
	if _, err := h.hub.HandleReconnect(connectionID, cursors); err != nil {
		h.hub.SendToConnection(connectionID, hub.ErrorFrame{
			Type: "error", Code: hub.CodeInternal, Message: err.Error(), Severity: hub.SeverityRetry,
		})
	}
}

func (h *Handler) sendChannelError(connectionID, channel string, err error) {
	if hubErr, ok := err.(*hub.Error); ok {
		h.hub.SendToConnection(connectionID, hub.ErrorFrame{
			Type: "error", Code: hubErr.Code, Message: hubErr.Message, Channel: channel, Severity: hubErr.Severity,
		})
		return
	}
	h.hub.SendToConnection(connectionID, hub.ErrorFrame{
		Type: "error", Code: hub.CodeInternal, Message: err.Error(), Channel: channel, Severity: hub.SeverityRetry,
	})
}
