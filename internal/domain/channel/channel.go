// Package channel implements the canonical channel identifier used across
// the Hub: parsing, validation, ack-required membership, and the
// capacity/TTL policy table for the ring buffer behind each channel.
package channel

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Channel is a validated, canonical stream identifier of the form
// "scope:type:id" (or "scope:type" for system channels). It is immutable
// once parsed.
type Channel struct {
	raw   string
	scope string
	typ   string
	id    string
}

var (
	// agentOrWorkspaceOrUser matches "agent|workspace|user:type[:id]".
	agentOrWorkspaceOrUser = regexp.MustCompile(`^(agent|workspace|user):[a-z_]+(:[A-Za-z0-9_-]+)?$`)
	// system matches "system:type" with no id segment.
	system = regexp.MustCompile(`^system:[a-z_]+$`)
)

// ErrInvalidChannel is returned by Parse when the string does not match
// the canonical channel grammar of spec §6.1.
type ErrInvalidChannel struct {
	Raw string
}

func (e *ErrInvalidChannel) Error() string {
	return fmt.Sprintf("invalid channel %q: does not match canonical grammar", e.Raw)
}

// Parse validates and constructs a Channel from its canonical wire form.
func Parse(raw string) (Channel, error) {
	if !agentOrWorkspaceOrUser.MatchString(raw) && !system.MatchString(raw) {
		return Channel{}, &ErrInvalidChannel{Raw: raw}
	}

	parts := strings.SplitN(raw, ":", 3)
	c := Channel{raw: raw, scope: parts[0], typ: parts[1]}
	if len(parts) == 3 {
		c.id = parts[2]
	}
	return c, nil
}

// MustParse is Parse, panicking on error. Intended for constants and tests.
func MustParse(raw string) Channel {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the canonical wire form.
func (c Channel) String() string { return c.raw }

// Scope returns the leading segment ("agent", "workspace", "user", "system").
func (c Channel) Scope() string { return c.scope }

// Type returns the middle segment ("output", "conflicts", "mail", ...).
func (c Channel) Type() string { return c.typ }

// ID returns the trailing segment, or "" for system channels.
func (c Channel) ID() string { return c.id }

// Prefix returns the "scope:type" prefix used to key the ring-buffer
// policy table, independent of the instance id.
func (c Channel) Prefix() string { return c.scope + ":" + c.typ }

// IsZero reports whether c is the zero value (never produced by Parse).
func (c Channel) IsZero() bool { return c.raw == "" }

// ackRequired is the default set of channel-type prefixes whose
// messages require explicit client acknowledgment (spec §3). Kept as a
// package-level var rather than a const so SetAckRequired can toggle
// membership at run time (spec §9 "Ack-required membership").
var ackRequired = map[string]bool{
	"workspace:conflicts":    true,
	"workspace:reservations": true,
	"user:notifications":     true,
}

// AckRequired reports whether messages on this channel must be tracked
// per-connection until acknowledged.
func (c Channel) AckRequired() bool { return ackRequired[c.Prefix()] }

// SetAckRequired overrides ack-required membership for a given
// "scope:type" prefix. Exposed for tests exercising spec §9's note that
// the set must be toggleable.
func SetAckRequired(prefix string, required bool) {
	if required {
		ackRequired[prefix] = true
	} else {
		delete(ackRequired, prefix)
	}
}

// BufferPolicy describes the ring-buffer capacity and TTL for a channel
// prefix, per spec §4.1's table.
type BufferPolicy struct {
	Capacity int
	TTL      time.Duration
}

// policyTable is exactly spec §4.1's table. Channel variants named in §3
// but absent here (workspace:handoffs, workspace:git, system:dcg) fall
// through to defaultPolicy, matching the table's own "default" row.
var policyTable = map[string]BufferPolicy{
	"agent:output":           {Capacity: 10_000, TTL: 5 * time.Minute},
	"agent:state":            {Capacity: 100, TTL: time.Hour},
	"agent:tools":            {Capacity: 500, TTL: 10 * time.Minute},
	"workspace:agents":       {Capacity: 200, TTL: 30 * time.Minute},
	"workspace:reservations": {Capacity: 500, TTL: 30 * time.Minute},
	"workspace:conflicts":    {Capacity: 500, TTL: 30 * time.Minute},
	"user:mail":              {Capacity: 1_000, TTL: 24 * time.Hour},
	"user:notifications":     {Capacity: 500, TTL: time.Hour},
	"system:health":          {Capacity: 60, TTL: time.Minute},
	"system:metrics":         {Capacity: 120, TTL: 2 * time.Minute},
}

var defaultPolicy = BufferPolicy{Capacity: 1_000, TTL: 5 * time.Minute}

// PolicyFor returns the configured capacity/TTL for a channel's prefix,
// falling back to the "default" row of spec §4.1's table for any prefix
// not explicitly listed.
func PolicyFor(prefix string) BufferPolicy {
	if p, ok := policyTable[prefix]; ok {
		return p
	}
	return defaultPolicy
}

// Policy returns PolicyFor(c.Prefix()).
func (c Channel) Policy() BufferPolicy { return PolicyFor(c.Prefix()) }
