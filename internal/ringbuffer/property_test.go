package ringbuffer_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flywheel-gateway/control-plane/internal/domain/message"
	"github.com/flywheel-gateway/control-plane/internal/ringbuffer"
)

// TestProperty_CapacityInvariant is spec §8 property 5: size(B) <=
// capacity(B) at all times, and after capacity+k pushes, k oldest
// entries are absent.
func TestProperty_CapacityInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("size never exceeds capacity, oldest k evicted", prop.ForAll(
		func(capacity, extra int) bool {
			b := ringbuffer.New[int](capacity, time.Hour)
			total := capacity + extra
			for i := 0; i < total; i++ {
				b.Push(i)
				if b.ValidSize() > capacity {
					return false
				}
			}

			all := b.GetAll(0)
			if len(all) != min(capacity, total) {
				return false
			}
			// The surviving window must be the most recent `capacity` pushes.
			want := total - len(all)
			for i, v := range all {
				if v != want+i {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_CursorMonotonicity is spec §8 property 4: sequence of
// push(i+1) is always greater than sequence of push(i).
func TestProperty_CursorMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("sequence strictly increases across pushes", prop.ForAll(
		func(n int) bool {
			b := ringbuffer.New[int](max(1, n), time.Hour)
			var last uint64
			for i := 0; i < n; i++ {
				c := b.Push(i)
				if i > 0 && c.Sequence <= last {
					return false
				}
				last = c.Sequence
			}
			return true
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// TestProperty_SliceOrderingMatchesPushOrder is spec §8 property 1
// restricted to a single buffer/subscriber view: delivered cursor
// sequence from Slice is strictly increasing and equals publish order.
func TestProperty_SliceOrderingMatchesPushOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("slice from zero cursor returns items in push order", prop.ForAll(
		func(n int) bool {
			b := ringbuffer.New[int](max(1, n+1), time.Hour)
			for i := 0; i < n; i++ {
				b.Push(i)
			}
			got := b.Slice(message.Cursor{}, 0)
			if len(got) != n {
				return false
			}
			for i, v := range got {
				if v != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
