package socks5d

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
)

// serverInstanceSeq gives each Server its own expvar namespace, so
// multiple Servers constructed in one process (e.g. in tests) never
// share a registered *expvar.Int with another instance.
var serverInstanceSeq int64

// Server is the SOCKS5 acceptor. It owns the listening socket and the
// shared admission-control state (IP whitelist and connection
// semaphore); everything else it hands to spawned Handlers is a shared,
// read-only or internally synchronized reference, per spec.md §3/§5.
type Server struct {
	cfg    ServerConfig
	filter *IPFilter
	sem    *admissionSemaphore
	cache  *DNSCache

	listener net.Listener
	active   int64 // atomic: current in-flight handler count

	metrics *serverMetrics
}

// NewServer validates cfg, compiles its IP whitelist, and constructs a
// Server ready to ListenAndServe. It does not bind a socket yet.
func NewServer(cfg ServerConfig) (*Server, error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		Log.Warn(w)
	}

	filter, err := NewIPFilter(cfg.IPWhitelist)
	if err != nil {
		return nil, err
	}

	if cfg.SyslogAddress != "" {
		network := cfg.SyslogNetwork
		if network == "" {
			network = "udp"
		}
		if err := EnableSyslog(network, cfg.SyslogAddress, "socks5d"); err != nil {
			Log.WithError(err).Error("failed to enable syslog forwarding")
		}
	}
	if cfg.LogLevel != "" {
		SetLevel(cfg.LogLevel)
	}

	id := strconv.FormatInt(atomic.AddInt64(&serverInstanceSeq, 1), 10)
	return &Server{
		cfg:     cfg,
		filter:  filter,
		sem:     newAdmissionSemaphore(cfg.MaxConnections),
		cache:   NewDNSCache(cfg.DNSCacheCapacity, cfg.DNSCacheTTL),
		metrics: newServerMetrics(id),
	}, nil
}

// ListenAndServe binds the configured address:port and runs the accept
// loop until it returns a fatal error (accept failure). It never
// returns nil; the caller decides what "clean shutdown" means for the
// wrapping process (e.g. treating a listener-closed error as success).
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(int(s.cfg.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	s.listener = ln

	Log.WithFields(map[string]interface{}{
		"addr":               addr,
		"max_connections":    s.cfg.MaxConnections,
		"dns_cache_capacity": s.cfg.DNSCacheCapacity,
		"dns_cache_ttl":      s.cfg.DNSCacheTTL.String(),
	}).Info("socks5 server started")

	return s.acceptLoop()
}

// Addr returns the address the server is currently bound to, or nil if
// ListenAndServe has not yet bound a socket.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the accept loop by closing the listening socket.
// In-flight connections are not drained; spec.md §5 requires no
// graceful drain.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// ActiveConnections returns the current number of live handler tasks,
// which must never exceed cfg.MaxConnections (spec.md §8).
func (s *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.active)
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return errors.Wrap(&ConnectionError{Msg: "accept failed", Err: err}, "accept loop terminated")
		}

		peer, ok := conn.RemoteAddr().(*net.TCPAddr)
		var peerIP net.IP
		if ok {
			peerIP = peer.IP
		}

		if !s.filter.Allows(peerIP) {
			Log.WithField("client", conn.RemoteAddr().String()).Warn("rejected: source IP not in whitelist")
			s.metrics.whitelistRejected.Add(1)
			conn.Close()
			continue
		}

		release, ok := s.sem.tryAcquire()
		if !ok {
			Log.WithField("client", conn.RemoteAddr().String()).Warn("rejected: connection limit reached")
			s.metrics.admissionRejected.Add(1)
			conn.Close()
			continue
		}

		Log.WithField("client", conn.RemoteAddr().String()).Info("accepted connection")
		s.metrics.accepted.Add(1)
		atomic.AddInt64(&s.active, 1)

		go s.dispatch(conn, release)
	}
}

func (s *Server) dispatch(conn net.Conn, release func()) {
	defer release()
	defer atomic.AddInt64(&s.active, -1)

	h := NewHandler(conn, s.cfg, s.cache)
	if err := h.Serve(context.Background()); err != nil {
		Log.WithError(err).WithField("client", conn.RemoteAddr().String()).Error("handler error")
	}
	Log.WithField("client", conn.RemoteAddr().String()).Info("connection closed")
}
