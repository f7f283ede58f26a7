package message

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Cursor encodes a (sequence, timestampMs) pair. It is opaque to clients:
// the wire form is a base64 string with no meaning outside the ring
// buffer that produced it, and cursors from different channels are never
// comparable (spec §3).
type Cursor struct {
	Sequence    uint64
	TimestampMs int64
}

// Zero reports whether c is the zero-value cursor (used as "absent").
func (c Cursor) Zero() bool { return c.Sequence == 0 && c.TimestampMs == 0 }

// Less reports whether c sorts strictly before other by sequence. Only
// meaningful for cursors from the same buffer.
func (c Cursor) Less(other Cursor) bool { return c.Sequence < other.Sequence }

// String renders the opaque wire form: base64 of a fixed 16-byte layout
// (8 bytes sequence, 8 bytes timestamp, big-endian).
func (c Cursor) String() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], c.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(c.TimestampMs))
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// ParseCursor decodes the wire form produced by String. A malformed
// cursor is reported as an error; per spec §4.1 "on cursor decode
// failure, operations behave as if the cursor were absent" — callers
// should treat the error as "absent", never propagate it as fatal.
func ParseCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return Cursor{}, fmt.Errorf("message: malformed cursor %q", s)
	}
	return Cursor{
		Sequence:    binary.BigEndian.Uint64(raw[0:8]),
		TimestampMs: int64(binary.BigEndian.Uint64(raw[8:16])),
	}, nil
}
