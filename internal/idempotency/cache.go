// Package idempotency implements the Idempotency Cache described in
// spec §4.3: single-flight coalescing and replay protection for
// mutating HTTP requests carrying an Idempotency-Key header.
//
// Grounded on the teacher's concurrency idioms (fine-grained locking,
// a background janitor goroutine, functional construction) carried over
// from registry.Hub, generalized here to request/response caching
// rather than connection fan-out. The insertion-ordered store (spec §9
// "Map-ordering dependency") is purpose-built in orderedset.go rather
// than borrowed from a generic LRU library, since eviction here must be
// strictly insertion-order, not access-order.
package idempotency

import (
	"sync"
	"time"
)

// Outcome of a cache lookup against a presented fingerprint.
type Outcome int

const (
	// OutcomeMiss means no record or pending entry exists for the key;
	// the caller should execute the request and register a pending
	// entry.
	OutcomeMiss Outcome = iota
	// OutcomeReplay means a completed, matching record exists; serve it
	// with X-Idempotent-Replayed.
	OutcomeReplay
	// OutcomeMismatch means a record or pending entry exists under this
	// key with a different fingerprint; return 422.
	OutcomeMismatch
	// OutcomePendingWait means another request with the same key and a
	// matching fingerprint is in flight; wait for it to resolve.
	OutcomePendingWait
)

// Cache is the concurrency-safe store behind the idempotency middleware.
type Cache struct {
	mu         sync.Mutex
	records    *orderedMap[string, *Record]
	pending    map[string]*pendingRequest
	ttl        time.Duration
	maxRecords int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Cache with the given TTL and max-records bound (spec
// §6.3 idempotency.ttlMs / idempotency.maxRecords) and starts its
// periodic sweep (spec §4.3 "~60s").
func New(ttl time.Duration, maxRecords int) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxRecords <= 0 {
		maxRecords = 10_000
	}
	c := &Cache{
		records:    newOrderedMap[string, *Record](),
		pending:    make(map[string]*pendingRequest),
		ttl:        ttl,
		maxRecords: maxRecords,
		stopCh:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.sweepLoop()
	return c
}

// Stop halts the periodic sweep goroutine.
func (c *Cache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// UpdateLimits applies a new TTL and max-records bound to subsequently
// resolved records, without restarting the cache or disturbing records
// already stored (spec §6.3 idempotency.ttlMs / idempotency.maxRecords
// as live-reloadable config). Invalid values are ignored, matching New's
// defaulting behavior.
func (c *Cache) UpdateLimits(ttl time.Duration, maxRecords int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		c.ttl = ttl
	}
	if maxRecords > 0 {
		c.maxRecords = maxRecords
		c.evictOverflowLocked()
	}
}

// Lookup implements spec §4.3's decision table for a key seen with the
// given fingerprint. It never mutates state except to read it; callers
// act on the returned Outcome (and, for OutcomePendingWait, call
// AwaitPending on the returned coordinator before retrying Lookup).
func (c *Cache) Lookup(key, fingerprint string) (Outcome, *Record, *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records.get(key); ok && !rec.expired(time.Now()) {
		if rec.Fingerprint == fingerprint {
			return OutcomeReplay, rec, nil
		}
		return OutcomeMismatch, nil, nil
	}

	if p, ok := c.pending[key]; ok {
		if p.fingerprint == fingerprint {
			return OutcomePendingWait, nil, p
		}
		return OutcomeMismatch, nil, nil
	}

	return OutcomeMiss, nil, nil
}

// AwaitPending blocks until the single-flight leader resolves or
// rejects p, returning its cached record (nil if rejected, meaning the
// caller should retry as a fresh request).
func (c *Cache) AwaitPending(p *pendingRequest) (*Record, bool) {
	<-p.done
	if p.rejected {
		return nil, false
	}
	return p.record, true
}

// Begin registers a pending entry for key/fingerprint, making this
// caller the single-flight leader. Begin re-checks state internally and
// returns ok=false if a record or another leader already claimed the
// key between the caller's Lookup and this call.
func (c *Cache) Begin(key, fingerprint string) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[key]; ok {
		return nil, false
	}
	if rec, ok := c.records.get(key); ok && !rec.expired(time.Now()) {
		return nil, false
	}

	p := newPendingRequest(fingerprint)
	c.pending[key] = p
	return p, true
}

// Resolve completes a pending entry with a cacheable record, stamping
// CreatedAt/ExpiresAt from the cache's own TTL, storing it, and waking
// waiters (spec §4.3 "Pending entry is resolved").
func (c *Cache) Resolve(key string, rec *Record) {
	c.mu.Lock()
	now := time.Now()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(c.ttl)

	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.records.set(key, rec)
	c.evictOverflowLocked()
	c.mu.Unlock()

	if ok {
		p.record = rec
		close(p.done)
	}
}

// Reject completes a pending entry without caching anything, so queued
// waiters retry as fresh requests (spec §4.3 "Pending entry is ...
// rejected").
func (c *Cache) Reject(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if ok {
		p.rejected = true
		close(p.done)
	}
}

// evictOverflowLocked removes oldest records until at or below
// maxRecords. Caller must hold c.mu.
func (c *Cache) evictOverflowLocked() {
	for c.records.len() > c.maxRecords {
		c.records.popOldest()
	}
}

// Sweep removes expired records and trims to maxRecords, returning the
// count removed (spec §4.3 eviction policy).
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.records.keys() {
		rec, ok := c.records.get(key)
		if ok && rec.expired(now) {
			c.records.delete(key)
			removed++
		}
	}
	before := c.records.len()
	c.evictOverflowLocked()
	removed += before - c.records.len()
	return removed
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the current record count, used by tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.len()
}
