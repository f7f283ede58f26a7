package ws_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/drain"
	"github.com/flywheel-gateway/control-plane/internal/hub"
	"github.com/flywheel-gateway/control-plane/internal/transport/ws"
)

func newTestServer(t *testing.T) (string, *hub.Hub) {
	t.Helper()
	h := hub.New(nil, hub.WithHeartbeatInterval(time.Hour), hub.WithCleanupInterval(time.Hour))
	t.Cleanup(h.Stop)

	handler := ws.NewHandler(nil, h, drain.New())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	return url, h
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_ConnectSubscribePublish(t *testing.T) {
	url, h := newTestServer(t)
	conn := dial(t, url)

	var connected map[string]any
	require.NoError(t, conn.ReadJSON(&connected))
	require.Equal(t, "connected", connected["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "channel": "agent:output:a1"}))

	var subscribed map[string]any
	require.NoError(t, conn.ReadJSON(&subscribed))
	require.Equal(t, "subscribed", subscribed["type"])

	_, err := h.Publish("agent:output:a1", "output.chunk", map[string]any{"text": "hi"}, nil)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "message", msg["type"])
}

func TestHandler_MalformedFrameProducesErrorFrame(t *testing.T) {
	url, _ := newTestServer(t)
	conn := dial(t, url)

	var connected map[string]any
	require.NoError(t, conn.ReadJSON(&connected))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var errFrame map[string]any
	require.NoError(t, conn.ReadJSON(&errFrame))
	require.Equal(t, "error", errFrame["type"])
	require.Equal(t, "INVALID_FORMAT", errFrame["code"])
}
