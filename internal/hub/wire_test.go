package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
)

// TestScenario_S1_BasicFanOut is spec §8 scenario S1.
func TestScenario_S1_BasicFanOut(t *testing.T) {
	h := newTestHub(t)
	tr1, tr2 := &fakeTransport{}, &fakeTransport{}
	h.AddConnection("c1", nil, tr1)
	h.AddConnection("c2", nil, tr2)
	_, err := h.Subscribe("c1", "agent:output:a1", nil)
	require.NoError(t, err)
	_, err = h.Subscribe("c2", "agent:output:a1", nil)
	require.NoError(t, err)

	_, err = h.Publish("agent:output:a1", "output.chunk", map[string]any{"text": "hi"}, nil)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(messageFrames(tr1.snapshot())) == 1 && len(messageFrames(tr2.snapshot())) == 1 })

	m1 := messageFrames(tr1.snapshot())[0]
	m2 := messageFrames(tr2.snapshot())[0]
	assert.Equal(t, "output.chunk", m1.Message.Type)
	assert.Equal(t, "agent:output:a1", m1.Message.Channel)
	assert.Equal(t, m1.Message.Cursor, m2.Message.Cursor)
	assert.False(t, m1.AckRequired)
	assert.False(t, m2.AckRequired)
}

// TestScenario_S2_AckRequired is spec §8 scenario S2.
func TestScenario_S2_AckRequired(t *testing.T) {
	h := newTestHub(t)
	tr := &fakeTransport{}
	h.AddConnection("c1", nil, tr)
	_, err := h.Subscribe("c1", "workspace:conflicts:w1", nil)
	require.NoError(t, err)

	msg, err := h.Publish("workspace:conflicts:w1", "conflict.detected", map[string]any{"fileId": "f1"}, nil)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(messageFrames(tr.snapshot())) == 1 })
	mf := messageFrames(tr.snapshot())[0]
	assert.True(t, mf.AckRequired)
	assert.Equal(t, msg.ID, mf.Message.ID)

	acked, notFound, err := h.HandleAck("c1", []string{msg.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, acked)
	assert.Empty(t, notFound)

	n, err := h.ReplayPendingAcks("c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// TestScenario_S3_ReconnectWithLiveCursor is spec §8 scenario S3.
func TestScenario_S3_ReconnectWithLiveCursor(t *testing.T) {
	h := newTestHub(t)
	tr := &fakeTransport{}
	h.AddConnection("c1", nil, tr)

	msgA, err := h.Publish("workspace:conflicts:w1", "conflict.detected", map[string]any{"fileId": "a"}, nil)
	require.NoError(t, err)
	msgB, err := h.Publish("workspace:conflicts:w1", "conflict.detected", map[string]any{"fileId": "b"}, nil)
	require.NoError(t, err)

	cursorA, err := message.ParseCursor(msgA.Cursor)
	require.NoError(t, err)

	result, err := h.HandleReconnect("c1", map[string]*message.Cursor{"workspace:conflicts:w1": &cursorA})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Replayed["workspace:conflicts:w1"])
	assert.Empty(t, result.Expired)

	waitFor(t, func() bool { return len(messageFrames(tr.snapshot())) >= 1 })
	delivered := messageFrames(tr.snapshot())
	require.Len(t, delivered, 1)
	assert.Equal(t, msgB.ID, delivered[0].Message.ID)
	assert.True(t, delivered[0].AckRequired)
}

// TestScenario_S4_CursorExpired is spec §8 scenario S4.
func TestScenario_S4_CursorExpired(t *testing.T) {
	h := newTestHub(t)
	tr := &fakeTransport{}
	h.AddConnection("c1", nil, tr)

	// system:health has a 1-minute TTL; simulate an ancient cursor by
	// constructing one whose timestamp predates the channel's retention
	// window, which IsValidCursor treats as absent (cursor never present
	// in the buffer's current window).
	oldCursor := message.Cursor{Sequence: 999999, TimestampMs: 1}

	result, err := h.HandleReconnect("c1", map[string]*message.Cursor{"system:health": &oldCursor})
	require.NoError(t, err)

	assert.Contains(t, result.Expired, "system:health")
}

// TestHandleReconnect_ResubscribesAllChannelsConcurrently exercises the
// errgroup-fanned resubscription path with several channels at once.
func TestHandleReconnect_ResubscribesAllChannelsConcurrently(t *testing.T) {
	h := newTestHub(t)
	tr := &fakeTransport{}
	h.AddConnection("c1", nil, tr)

	channels := []string{
		"workspace:conflicts:w1",
		"agent:output:a1",
		"user:notifications",
		"system:metrics",
	}
	cursors := make(map[string]*message.Cursor, len(channels))
	for _, ch := range channels {
		cursors[ch] = nil
	}

	result, err := h.HandleReconnect("c1", cursors)
	require.NoError(t, err)

	for _, ch := range channels {
		assert.Contains(t, result.NewCursors, ch)
		assert.Contains(t, result.Replayed, ch)
	}
	assert.Empty(t, result.Expired)
}
