package channel

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// parseCache memoizes Parse against the hot channel strings a busy Hub
// re-parses on every Subscribe/Publish/Replay call. Grounded on the
// teacher's PeerEnricher (internal/service/peer_enricher.go), which
// used the same hashicorp/golang-lru package to cache "hot" identity
// lookups rather than re-resolving them on every message; here the
// "identity" is a channel string instead of a peer.
var parseCache, _ = lru.New[string, Channel](10_000)

// ParseCached is Parse, but serves repeated lookups for the same raw
// string from an LRU cache instead of re-running the grammar regexes.
// AckRequired is looked up live against Prefix() on every call, so a
// cached Channel is unaffected by SetAckRequired staleness.
func ParseCached(raw string) (Channel, error) {
	if c, ok := parseCache.Get(raw); ok {
		return c, nil
	}
	c, err := Parse(raw)
	if err != nil {
		return Channel{}, err
	}
	parseCache.Add(raw, c)
	return c, nil
}
