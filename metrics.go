package socks5d

import "expvar"

// serverMetrics tracks acceptor-level counters, mirroring the teacher's
// per-component metrics structs (CacheMetrics, RateLimiterMetrics).
type serverMetrics struct {
	accepted          *expvar.Int
	whitelistRejected *expvar.Int
	admissionRejected *expvar.Int
}

func newServerMetrics(id string) *serverMetrics {
	return &serverMetrics{
		accepted:          getVarInt("server", id, "accepted"),
		whitelistRejected: getVarInt("server", id, "whitelist_rejected"),
		admissionRejected: getVarInt("server", id, "admission_rejected"),
	}
}
