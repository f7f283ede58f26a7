package hub

import "time"

// Option is a functional configuration type for the Hub, in the style of
// the teacher's registry.Option (webitel-im-delivery-service
// internal/domain/registry/options.go).
type Option func(*config)

type config struct {
	heartbeatInterval time.Duration
	connectionTimeout time.Duration
	mailboxSize       int
	maxPendingAcks    int
	cleanupInterval   time.Duration
}

func defaultConfig() config {
	return config{
		heartbeatInterval: 30 * time.Second,
		connectionTimeout: 90 * time.Second,
		mailboxSize:       1_000,
		maxPendingAcks:    10_000,
		cleanupInterval:   time.Minute,
	}
}

// WithHeartbeatInterval sets the cadence of the server heartbeat loop
// (spec §4.5, config option heartbeatIntervalMs).
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) { c.heartbeatInterval = d }
}

// WithConnectionTimeout sets the dead-connection reaper threshold (spec
// §4.5 / §6.3 connectionTimeoutMs).
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *config) { c.connectionTimeout = d }
}

// WithMailboxSize sets the per-connection outbound queue capacity. On
// overflow the connection is closed rather than blocking the publisher
// (spec §5 "bounded outbound queue").
func WithMailboxSize(size int) Option {
	return func(c *config) { c.mailboxSize = size }
}

// WithMaxPendingAcks sets the per-connection pending-ack cap (spec §4.2
// recommends 10 000; exceeding it closes the connection).
func WithMaxPendingAcks(n int) Option {
	return func(c *config) { c.maxPendingAcks = n }
}

// WithCleanupInterval sets how often pruneBuffers/pruneUnusedBuffers run.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) { c.cleanupInterval = d }
}
