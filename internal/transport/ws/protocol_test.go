package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound_ValidFrames(t *testing.T) {
	cases := []string{
		`{"type":"subscribe","channel":"agent:output:a1"}`,
		`{"type":"unsubscribe","channel":"agent:output:a1"}`,
		`{"type":"backfill","channel":"agent:output:a1","fromCursor":"x","limit":10}`,
		`{"type":"ping","timestamp":123}`,
		`{"type":"reconnect","cursors":{"agent:output:a1":"x"}}`,
		`{"type":"ack","messageIds":["m1"]}`,
	}
	for _, raw := range cases {
		_, err := parseInbound([]byte(raw))
		assert.NoError(t, err, raw)
	}
}

func TestParseInbound_MalformedJSON(t *testing.T) {
	_, err := parseInbound([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseInbound_UnknownType(t *testing.T) {
	_, err := parseInbound([]byte(`{"type":"frobnicate"}`))
	assert.Error(t, err)
}

func TestParseInbound_MissingRequiredField(t *testing.T) {
	_, err := parseInbound([]byte(`{"type":"subscribe"}`))
	assert.Error(t, err)

	_, err = parseInbound([]byte(`{"type":"ack","messageIds":[]}`))
	assert.Error(t, err)

	_, err = parseInbound([]byte(`{"type":"reconnect"}`))
	assert.Error(t, err)
}

func TestParseCursorField_BlankAndMalformed(t *testing.T) {
	assert.Nil(t, parseCursorField(""))
	assert.Nil(t, parseCursorField("not-base64-16-bytes!!"))
}

// TestParseCursorsField_MalformedEntryStaysPresentButAbsent ensures a
// malformed per-channel cursor keeps its channel in the reconnect map
// (so it still gets resubscribed) with a nil cursor, rather than being
// dropped outright.
func TestParseCursorsField_MalformedEntryStaysPresentButAbsent(t *testing.T) {
	out := parseCursorsField(map[string]string{
		"workspace:conflicts:w1": "not-base64-16-bytes!!",
		"agent:output:a1":        "",
	})
	require.Contains(t, out, "workspace:conflicts:w1")
	require.Contains(t, out, "agent:output:a1")
	assert.Nil(t, out["workspace:conflicts:w1"])
	assert.Nil(t, out["agent:output:a1"])
}

func TestParseInbound_SubscribeCarriesChannel(t *testing.T) {
	frame, err := parseInbound([]byte(`{"type":"subscribe","channel":"agent:output:a1"}`))
	require.NoError(t, err)
	assert.Equal(t, "agent:output:a1", frame.Channel)
}
