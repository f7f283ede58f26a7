package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// Record is a cached mutating-request outcome, keyed by its client-
// supplied Idempotency-Key (spec §3 IdempotencyRecord).
type Record struct {
	Key         string
	Method      string
	Path        string
	Status      int
	Headers     http.Header
	Body        []byte
	Fingerprint string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r *Record) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Fingerprint computes spec §4.3's request fingerprint: the first 16
// hex characters of SHA-256(method || ":" || path || ":" || body).
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(":"))
	h.Write([]byte(path))
	h.Write([]byte(":"))
	h.Write(body)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// pendingRequest is the single-flight coordinator for one in-flight key
// (spec §3 PendingRequest).
type pendingRequest struct {
	fingerprint string
	done        chan struct{}
	record      *Record
	rejected    bool
}

func newPendingRequest(fingerprint string) *pendingRequest {
	return &pendingRequest{fingerprint: fingerprint, done: make(chan struct{})}
}
