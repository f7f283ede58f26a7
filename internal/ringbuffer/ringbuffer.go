// Package ringbuffer implements the bounded, TTL-expiring, cursor-
// addressed per-channel history described in spec §4.1. It is generic
// over the stored item type so the Hub can instantiate it over
// message.HubMessage without this package depending on that type.
//
// Grounded on the teacher's actor mailbox eviction pattern
// (webitel-im-delivery-service internal/domain/registry/cell.go) and on
// cfullelove-mcp-workspaces' pkg/events/hub.go circular-buffer-per-scope
// design, generalized here into a standalone bounded structure with
// explicit cursor addressing rather than an implicit array index, since
// spec requires cursors to remain meaningful across evictions.
package ringbuffer

import (
	"sync"
	"time"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
)

// entry is one stored item plus its ring-buffer bookkeeping.
type entry[T any] struct {
	item      T
	cursor    message.Cursor
	timestamp time.Time
}

func (e entry[T]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.timestamp) > ttl
}

// RingBuffer is a bounded FIFO with TTL expiration and cursor addressing
// (spec §4.1). All operations are total and non-blocking; invalid
// cursors never raise, they return absent/empty/false.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  []entry[T]
	nextSeq  uint64

	capacityEvictions uint64
	ttlExpirations    uint64
	lastEvictionAt    time.Time
}

// New creates a RingBuffer with the given capacity and TTL. Capacity and
// TTL are fixed for the lifetime of the buffer (spec §4.1's table is
// consulted once, at construction, by the Hub).
func New[T any](capacity int, ttl time.Duration) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make([]entry[T], 0, capacity),
	}
}

// Push assigns the next monotonic sequence and the current timestamp,
// appends the item, and evicts the oldest entry while size > capacity.
func (b *RingBuffer[T]) Push(item T) message.Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	now := time.Now().UTC()
	cur := message.Cursor{Sequence: b.nextSeq, TimestampMs: now.UnixMilli()}
	b.entries = append(b.entries, entry[T]{item: item, cursor: cur, timestamp: now})

	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:]
		b.capacityEvictions++
		b.lastEvictionAt = now
	}

	return cur
}

// Get returns the item matching cursor exactly, or absent if missing or
// expired.
func (b *RingBuffer[T]) Get(cursor message.Cursor) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	now := time.Now()
	for _, e := range b.entries {
		if e.cursor == cursor {
			if e.expired(now, b.ttl) {
				return zero, false
			}
			return e.item, true
		}
	}
	return zero, false
}

// Slice returns entries strictly after cursor, in sequence order, up to
// limit (0 means unlimited), skipping expired entries.
func (b *RingBuffer[T]) Slice(cursor message.Cursor, limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	out := make([]T, 0)
	for _, e := range b.entries {
		if e.expired(now, b.ttl) {
			continue
		}
		if cursor.Less(e.cursor) {
			out = append(out, e.item)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetAll returns all non-expired entries from the oldest one, up to
// limit (0 means unlimited).
func (b *RingBuffer[T]) GetAll(limit int) []T {
	return b.Slice(message.Cursor{}, limit)
}

// LatestCursor returns the newest non-expired cursor, or false if empty.
func (b *RingBuffer[T]) LatestCursor() (message.Cursor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for i := len(b.entries) - 1; i >= 0; i-- {
		if !b.entries[i].expired(now, b.ttl) {
			return b.entries[i].cursor, true
		}
	}
	return message.Cursor{}, false
}

// OldestCursor returns the oldest non-expired cursor, or false if empty.
func (b *RingBuffer[T]) OldestCursor() (message.Cursor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, e := range b.entries {
		if !e.expired(now, b.ttl) {
			return e.cursor, true
		}
	}
	return message.Cursor{}, false
}

// IsValidCursor reports whether the referenced entry is still present
// and not expired.
func (b *RingBuffer[T]) IsValidCursor(cursor message.Cursor) bool {
	_, ok := b.Get(cursor)
	return ok
}

// Prune removes expired entries and returns the count removed.
func (b *RingBuffer[T]) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneLocked()
}

func (b *RingBuffer[T]) pruneLocked() int {
	now := time.Now()
	kept := b.entries[:0:0]
	removed := 0
	for _, e := range b.entries {
		if e.expired(now, b.ttl) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	b.ttlExpirations += uint64(removed)
	return removed
}

// ValidSize returns the number of currently non-expired entries.
func (b *RingBuffer[T]) ValidSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	n := 0
	for _, e := range b.entries {
		if !e.expired(now, b.ttl) {
			n++
		}
	}
	return n
}

// Utilization returns ValidSize / capacity, in [0,1].
func (b *RingBuffer[T]) Utilization() float64 {
	return float64(b.ValidSize()) / float64(b.capacity)
}

// Stats is a diagnostic snapshot used by Hub.Stats (spec §4.2).
type Stats struct {
	Capacity          int
	ValidSize         int
	CapacityEvictions uint64
	TTLExpirations    uint64
	LastEvictionAt    time.Time
}

// Snapshot returns the current diagnostics without mutating state.
func (b *RingBuffer[T]) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	valid := 0
	for _, e := range b.entries {
		if !e.expired(now, b.ttl) {
			valid++
		}
	}
	return Stats{
		Capacity:          b.capacity,
		ValidSize:         valid,
		CapacityEvictions: b.capacityEvictions,
		TTLExpirations:    b.ttlExpirations,
		LastEvictionAt:    b.lastEvictionAt,
	}
}
