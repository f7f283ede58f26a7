package hub

import "time"

// PrefixStats is the per-channel-prefix breakdown inside HubStats.
type PrefixStats struct {
	Connections       int     `json:"connections"`
	Buffers           int     `json:"buffers"`
	Utilization       float64 `json:"utilization"`
	CapacityEvictions uint64  `json:"capacityEvictions"`
	TTLExpirations    uint64  `json:"ttlExpirations"`
}

// HubStats is the diagnostic snapshot returned by Hub.Stats (spec §4.2).
type HubStats struct {
	Connections        int                    `json:"connections"`
	Channels           int                    `json:"channels"`
	MessagesPerSecond  float64                `json:"messagesPerSecond"`
	TotalMessages      uint64                 `json:"totalMessages"`
	SendFailures       uint64                 `json:"sendFailures"`
	CapacityEvictions  uint64                 `json:"capacityEvictions"`
	TTLExpirations     uint64                 `json:"ttlExpirations"`
	LastDropAt         time.Time              `json:"lastDropAt,omitempty"`
	AverageUtilization float64                `json:"averageUtilization"`
	ByPrefix           map[string]PrefixStats `json:"byPrefix"`
}
