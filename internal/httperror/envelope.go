// Package httperror renders the structured HTTP error envelope shared
// by the idempotency middleware, the drain/maintenance gate, and the
// HTTP surface's own handlers (spec §6.2, §7).
package httperror

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Body is the 4xx/5xx response shape: {error:{code, message,
// correlationId, timestamp, details?, severity?, hint?}}.
type Body struct {
	Error Detail `json:"error"`
}

// Detail is the nested error object.
type Detail struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
	Details       any    `json:"details,omitempty"`
	Severity      string `json:"severity,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

// Write renders the envelope with the given status code. correlationId
// is generated fresh if the caller has none to propagate.
func Write(w http.ResponseWriter, status int, code, message, severity string) {
	WriteWithCorrelation(w, status, code, message, severity, uuid.NewString())
}

// WriteWithCorrelation is Write with an explicit correlation id, used
// when a request-scoped id is already available.
func WriteWithCorrelation(w http.ResponseWriter, status int, code, message, severity, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Error: Detail{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Severity:      severity,
	}})
}
