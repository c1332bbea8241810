/*
Package socks5d implements a SOCKS version 5 proxy server (RFC 1928, with
username/password authentication per RFC 1929).

The server accepts inbound TCP connections, negotiates an authentication
method, parses a CONNECT request, resolves and dials the requested target
through a TTL-bounded DNS cache, and relays bytes bidirectionally between
client and target until either side closes.

There are four fundamental pieces:

Handler

The per-connection state machine that drives greeting, auth, request
parsing, dial, and relay.

Server

The acceptor: binds a listening socket, applies admission control (an IP
whitelist and a bounded connection semaphore) and spawns a Handler per
admitted connection.

DNSCache

A bounded, TTL-expiring cache of resolved addresses shared by all
handlers.

IPFilter

A compiled whitelist of CIDR and IPv4 wildcard rules used by the acceptor.

	cfg := socks5d.DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 1080
	cfg.AllowAnonymous = true
	srv, err := socks5d.NewServer(cfg)
	if err != nil {
		panic(err)
	}
	panic(srv.ListenAndServe())
*/
package socks5d
