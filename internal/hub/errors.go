package hub

import "fmt"

// Code is a stable wire error code (spec §7).
type Code string

const (
	CodeInvalidFormat      Code = "INVALID_FORMAT"
	CodeInvalidChannel     Code = "INVALID_CHANNEL"
	CodeSubscriptionDenied Code = "WS_SUBSCRIPTION_DENIED"
	CodeAuthRequired       Code = "WS_AUTHENTICATION_REQUIRED"
	CodeCursorExpired      Code = "WS_CURSOR_EXPIRED"
	CodeRateLimited        Code = "WS_RATE_LIMITED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeSerialization      Code = "SERIALIZATION_ERROR"
)

// Severity classifies how a client should react to an error (spec §7).
type Severity string

const (
	SeverityTerminal    Severity = "terminal"
	SeverityRecoverable Severity = "recoverable"
	SeverityRetry       Severity = "retry"
)

// Error is a structured protocol error carrying a stable code and
// severity, suitable for both the WS error frame and HTTP envelopes.
type Error struct {
	Code     Code
	Message  string
	Channel  string
	Severity Severity
}

func (e *Error) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s: %s (channel=%s)", e.Code, e.Message, e.Channel)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrUnknownConnection is returned by operations addressed to a
// connectionId the Hub does not currently hold.
var ErrUnknownConnection = fmt.Errorf("hub: unknown connection")

func errInvalidChannel(raw string) *Error {
	return &Error{Code: CodeInvalidChannel, Message: "unrecognized channel", Channel: raw, Severity: SeverityRecoverable}
}
