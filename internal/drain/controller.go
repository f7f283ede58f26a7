// Package drain implements the Drain / Maintenance Controller (spec
// §4.4): a process-wide lifecycle gate used for controlled shutdown and
// planned maintenance windows.
//
// Grounded on the teacher's concurrency idioms (atomic counters,
// explicit Stop semantics) generalized from registry.Hub's per-instance
// lifecycle into a process-wide singleton, since drain/maintenance state
// in spec §3 is explicitly global ("MaintenanceState... monotonic
// counter inflightRequests").
package drain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Mode is one of the three MaintenanceState modes (spec §3/§4.4).
type Mode string

const (
	ModeRunning     Mode = "running"
	ModeMaintenance Mode = "maintenance"
	ModeDraining    Mode = "draining"
)

// Controller implements the state machine and in-flight counter
// described in spec §4.4.
type Controller struct {
	mu         sync.RWMutex
	mode       Mode
	deadlineAt time.Time
	reason     string

	inflight int64
}

// New constructs a Controller in the running state.
func New() *Controller {
	return &Controller{mode: ModeRunning}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// DeadlineAt returns the draining deadline, if any.
func (c *Controller) DeadlineAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deadlineAt.IsZero() {
		return time.Time{}, false
	}
	return c.deadlineAt, true
}

// StartMaintenance transitions running -> maintenance.
func (c *Controller) StartMaintenance(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeRunning {
		return fmt.Errorf("drain: cannot start maintenance from %s", c.mode)
	}
	c.mode = ModeMaintenance
	c.reason = reason
	return nil
}

// StartDraining transitions running -> draining with a bounded deadline
// (spec §4.4 startDraining, deadlineSeconds ∈ [1,300]).
func (c *Controller) StartDraining(deadlineSeconds int, reason string) error {
	if deadlineSeconds < 1 || deadlineSeconds > 300 {
		return fmt.Errorf("drain: deadlineSeconds must be in [1,300], got %d", deadlineSeconds)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeDraining {
		return nil
	}
	c.mode = ModeDraining
	c.deadlineAt = time.Now().Add(time.Duration(deadlineSeconds) * time.Second)
	c.reason = reason
	return nil
}

// Resume transitions maintenance -> running.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeMaintenance {
		return fmt.Errorf("drain: cannot resume from %s", c.mode)
	}
	c.mode = ModeRunning
	c.deadlineAt = time.Time{}
	c.reason = ""
	return nil
}

// RetryAfterSeconds returns the seconds remaining until the draining
// deadline, rounded up, or 0 if there is none (spec §6.2 Retry-After).
func (c *Controller) RetryAfterSeconds() int {
	deadline, ok := c.DeadlineAt()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

// TrackRequestStart increments the in-flight counter (spec §4.4
// trackHttpRequestStart).
func (c *Controller) TrackRequestStart() {
	atomic.AddInt64(&c.inflight, 1)
}

// TrackRequestEnd decrements the in-flight counter (spec §4.4
// trackHttpRequestEnd). Symmetric under all exits — callers must defer
// this immediately after TrackRequestStart.
func (c *Controller) TrackRequestEnd() {
	atomic.AddInt64(&c.inflight, -1)
}

// InflightRequests returns the current in-flight count.
func (c *Controller) InflightRequests() int64 {
	return atomic.LoadInt64(&c.inflight)
}

// WaitForDrain busy-waits with 100ms granularity until inflight reaches
// zero or the deadline passes (spec §4.4 shutdown sequence), returning
// true if it drained cleanly.
func (c *Controller) WaitForDrain(deadline time.Time) bool {
	for {
		if c.InflightRequests() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
