package socks5d

import "time"

// ServerConfig is immutable after construction and shared by all
// handlers spawned by a Server.
type ServerConfig struct {
	Address string
	Port    uint16

	AllowAnonymous bool
	Username       string
	Password       string

	DNSCacheCapacity int
	DNSCacheTTL      time.Duration

	MaxConnections int

	// IPWhitelist is an ordered sequence of CIDR or IPv4-wildcard
	// patterns. An empty sequence allows every source address.
	IPWhitelist []string

	// LogLevel controls the package logger's verbosity: debug, info,
	// warn, or error.
	LogLevel string

	// SyslogAddress, when non-empty, forwards all log output to a
	// syslog daemon at this address in addition to the default sink.
	SyslogAddress string
	SyslogNetwork string
}

// DefaultConfig returns a ServerConfig populated with the defaults from
// spec.md §6: bind to 127.0.0.1:1080, anonymous access disabled, a
// 10,000-entry / 5-minute DNS cache, 1024 max connections, and an empty
// (allow-all) whitelist.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Address:          "127.0.0.1",
		Port:             1080,
		AllowAnonymous:   false,
		DNSCacheCapacity: 10000,
		DNSCacheTTL:      300 * time.Second,
		MaxConnections:   1024,
		LogLevel:         "info",
	}
}

// HasPasswordAuth reports whether both a username and a password are
// configured, which is the precondition for offering method 0x02.
func (c ServerConfig) HasPasswordAuth() bool {
	return c.Username != "" && c.Password != ""
}

// Validate checks the configuration for internal consistency. It never
// rejects a config outright for the username/password mismatch case
// (spec.md §9 treats that as a silent disable, not a hard error); it
// only reports that condition to the caller so it can be logged.
func (c ServerConfig) Validate() (warnings []string, err error) {
	if c.Port == 0 {
		return warnings, &Unknown{Msg: "port must be non-zero"}
	}
	if c.MaxConnections <= 0 {
		return warnings, &Unknown{Msg: "max_connections must be positive"}
	}
	if c.DNSCacheCapacity < 0 {
		return warnings, &Unknown{Msg: "dns_cache_capacity must not be negative"}
	}
	if (c.Username != "") != (c.Password != "") {
		warnings = append(warnings, "only one of username/password is set; password authentication is disabled")
	}
	if !c.AllowAnonymous && !c.HasPasswordAuth() {
		warnings = append(warnings, "no authentication method is usable; all clients will be rejected at method negotiation")
	}
	return warnings, nil
}
