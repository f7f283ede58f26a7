package ringbuffer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
	"github.com/flywheel-gateway/control-plane/internal/ringbuffer"
)

func TestPush_AssignsMonotonicCursors(t *testing.T) {
	b := ringbuffer.New[string](10, time.Minute)

	c1 := b.Push("a")
	c2 := b.Push("b")
	c3 := b.Push("c")

	assert.True(t, c1.Less(c2))
	assert.True(t, c2.Less(c3))
}

func TestCapacityInvariant(t *testing.T) {
	b := ringbuffer.New[int](3, time.Minute)

	for i := 0; i < 3+5; i++ {
		b.Push(i)
	}

	all := b.GetAll(0)
	require.Len(t, all, 3)
	assert.Equal(t, []int{5, 6, 7}, all)
}

func TestGet_MissingOrExpired(t *testing.T) {
	b := ringbuffer.New[string](10, time.Minute)
	b.Push("a")

	_, ok := b.Get(message.Cursor{Sequence: 999, TimestampMs: 1})
	assert.False(t, ok)
}

func TestTTLInvariant(t *testing.T) {
	b := ringbuffer.New[string](10, 10*time.Millisecond)
	b.Push("a")
	require.Equal(t, 1, b.ValidSize())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, b.ValidSize())

	removed := b.Prune()
	assert.Equal(t, 1, removed)
}

func TestSlice_ExclusiveAfterCursor(t *testing.T) {
	b := ringbuffer.New[string](10, time.Minute)
	cA := b.Push("a")
	b.Push("b")
	cC := b.Push("c")

	got := b.Slice(cA, 0)
	assert.Equal(t, []string{"b", "c"}, got)

	got = b.Slice(cC, 0)
	assert.Empty(t, got)
}

func TestSlice_Limit(t *testing.T) {
	b := ringbuffer.New[int](10, time.Minute)
	for i := 0; i < 5; i++ {
		b.Push(i)
	}
	got := b.Slice(message.Cursor{}, 2)
	assert.Equal(t, []int{0, 1}, got)
}

func TestIsValidCursor(t *testing.T) {
	b := ringbuffer.New[string](2, time.Minute)
	c1 := b.Push("a")
	b.Push("b")
	b.Push("c") // evicts "a"

	assert.False(t, b.IsValidCursor(c1))
}

func TestLatestAndOldestCursor_EmptyBuffer(t *testing.T) {
	b := ringbuffer.New[string](2, time.Minute)
	_, ok := b.LatestCursor()
	assert.False(t, ok)
	_, ok = b.OldestCursor()
	assert.False(t, ok)
}

func TestUtilization(t *testing.T) {
	b := ringbuffer.New[int](4, time.Minute)
	b.Push(1)
	b.Push(2)
	assert.InDelta(t, 0.5, b.Utilization(), 0.001)
}

func TestSnapshot_TracksEvictionsAndExpirations(t *testing.T) {
	b := ringbuffer.New[int](2, 10*time.Millisecond)
	b.Push(1)
	b.Push(2)
	b.Push(3) // evicts one

	s := b.Snapshot()
	assert.Equal(t, uint64(1), s.CapacityEvictions)
	assert.False(t, s.LastEvictionAt.IsZero())

	time.Sleep(30 * time.Millisecond)
	b.Prune()
	s = b.Snapshot()
	assert.Equal(t, uint64(2), s.TTLExpirations)
}
