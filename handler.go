package socks5d

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handler implements the per-connection SOCKS5 state machine described
// in spec.md §4.3: greeting, method negotiation, optional
// username/password sub-negotiation, request parsing, dial, and
// bidirectional relay. One Handler is created per accepted connection
// and is never reused.
type Handler struct {
	conn   net.Conn
	remote net.Addr
	cfg    ServerConfig
	cache  *DNSCache
	log    *logrus.Entry
}

// NewHandler returns a Handler that owns conn for its entire lifetime.
func NewHandler(conn net.Conn, cfg ServerConfig, cache *DNSCache) *Handler {
	return &Handler{
		conn:   conn,
		remote: conn.RemoteAddr(),
		cfg:    cfg,
		cache:  cache,
		log:    Log.WithField("client", conn.RemoteAddr().String()),
	}
}

// Serve drives the connection through the full state machine to
// Terminated. It always closes the underlying socket before returning,
// on both the success and error paths, per spec.md's ConnectionState
// lifecycle.
func (h *Handler) Serve(ctx context.Context) error {
	defer h.conn.Close()

	method, err := h.negotiateMethod()
	if err != nil {
		return err
	}

	if method == authUsernamePass {
		if err := h.authenticateUserPass(); err != nil {
			return err
		}
	}

	host, atyp, port, err := h.readRequest()
	if err != nil {
		return err
	}

	return h.dialAndRelay(ctx, host, atyp, port)
}

// negotiateMethod implements S0 (Greeting) and S1 (Method Selection).
func (h *Handler) negotiateMethod() (authMethod, error) {
	hdr, err := readFull(h.conn, 2)
	if err != nil {
		return 0, err
	}
	ver, nmethods := hdr[0], int(hdr[1])
	if ver != protocolVersion {
		return 0, &UnsupportedProtocolVersion{Got: ver}
	}

	methods, err := readFull(h.conn, nmethods)
	if err != nil {
		return 0, err
	}

	offers := make(map[byte]bool, len(methods))
	for _, m := range methods {
		offers[m] = true
	}

	// Password is preferred over anonymous when both are offered and
	// both are acceptable to the server (spec.md §4.3, §9).
	var selected authMethod
	switch {
	case offers[byte(authUsernamePass)] && h.cfg.HasPasswordAuth():
		selected = authUsernamePass
	case offers[byte(authNoneRequired)] && h.cfg.AllowAnonymous:
		selected = authNoneRequired
	default:
		if err := writeAll(h.conn, []byte{protocolVersion, byte(authNoAcceptable)}); err != nil {
			return 0, err
		}
		return 0, &AuthenticationFailed{Reason: "no acceptable authentication method offered"}
	}

	if err := writeAll(h.conn, []byte{protocolVersion, byte(selected)}); err != nil {
		return 0, err
	}
	h.log.WithField("method", selected.String()).Debug("method negotiated")
	return selected, nil
}

// authenticateUserPass implements S2 (User/Pass Sub-negotiation).
func (h *Handler) authenticateUserPass() error {
	// Sub-negotiation version byte: read but not validated, per spec.md.
	if _, err := readFull(h.conn, 1); err != nil {
		return err
	}

	ulenB, err := readFull(h.conn, 1)
	if err != nil {
		return err
	}
	uname, err := readFull(h.conn, int(ulenB[0]))
	if err != nil {
		return err
	}
	plenB, err := readFull(h.conn, 1)
	if err != nil {
		return err
	}
	passwd, err := readFull(h.conn, int(plenB[0]))
	if err != nil {
		return err
	}

	if !utf8.Valid(uname) || !utf8.Valid(passwd) {
		return &InvalidRequestFormat{Reason: "username/password is not valid UTF-8"}
	}

	ok := string(uname) == h.cfg.Username && string(passwd) == h.cfg.Password
	if !ok {
		if err := writeAll(h.conn, []byte{protocolVersion, 0x01}); err != nil {
			return err
		}
		return &AuthenticationFailed{Reason: "invalid username or password"}
	}
	return writeAll(h.conn, []byte{protocolVersion, 0x00})
}

// readRequest implements S3 (Request Header) and S4 (Address Parsing).
// It returns the requested host (literal IP or domain name), the
// address type that was on the wire, and the port.
func (h *Handler) readRequest() (host string, atyp addressType, port uint16, err error) {
	hdr, err := readFull(h.conn, 4)
	if err != nil {
		return "", 0, 0, err
	}
	ver, cmdByte, _ /* rsv */, atypByte := hdr[0], hdr[1], hdr[2], hdr[3]
	if ver != protocolVersion {
		return "", 0, 0, &UnsupportedProtocolVersion{Got: ver}
	}

	switch command(cmdByte) {
	case cmdConnect:
		// proceed
	case cmdBind, cmdUDPAssociate:
		reply := []byte{protocolVersion, byte(replyCmdNotSupported), 0x00, byte(atypIPv4), 0, 0, 0, 0}
		if werr := writeAll(h.conn, reply); werr != nil {
			return "", 0, 0, werr
		}
		return "", 0, 0, &UnsupportedCmd{Cmd: cmdByte}
	default:
		return "", 0, 0, &InvalidRequestFormat{Reason: fmt.Sprintf("unknown command 0x%02x", cmdByte)}
	}

	atyp = addressType(atypByte)
	switch atyp {
	case atypIPv4:
		raw, rerr := readFull(h.conn, 4)
		if rerr != nil {
			return "", 0, 0, rerr
		}
		host = fmt.Sprintf("%d.%d.%d.%d", raw[0], raw[1], raw[2], raw[3])
	case atypDomain:
		lenB, rerr := readFull(h.conn, 1)
		if rerr != nil {
			return "", 0, 0, rerr
		}
		raw, rerr := readFull(h.conn, int(lenB[0]))
		if rerr != nil {
			return "", 0, 0, rerr
		}
		if !utf8.Valid(raw) {
			return "", 0, 0, &InvalidRequestFormat{Reason: "domain name is not valid UTF-8"}
		}
		host = string(raw)
	case atypIPv6:
		raw, rerr := readFull(h.conn, 16)
		if rerr != nil {
			return "", 0, 0, rerr
		}
		host = formatIPv6NoCompression(raw)
	default:
		return "", 0, 0, &InvalidRequestFormat{Reason: fmt.Sprintf("unknown address type 0x%02x", atypByte)}
	}

	portB, err := readFull(h.conn, 2)
	if err != nil {
		return "", 0, 0, err
	}
	port = uint16(portB[0])<<8 | uint16(portB[1])

	return host, atyp, port, nil
}

// formatIPv6NoCompression renders 16 raw bytes as eight colon-separated
// lowercase hex groups without zero compression, per spec.md's §9
// design note (not canonical RFC 5952 form).
func formatIPv6NoCompression(raw []byte) string {
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		v := uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		groups[i] = fmt.Sprintf("%x", v)
	}
	out := groups[0]
	for _, g := range groups[1:] {
		out += ":" + g
	}
	return out
}

// dialAndRelay implements S5 (Dial) and S6 (Relay).
func (h *Handler) dialAndRelay(ctx context.Context, host string, atyp addressType, port uint16) error {
	target, err := h.dial(ctx, host, atyp, port)
	if err != nil {
		reply := []byte{protocolVersion, byte(replyGeneralFailure), 0x00, byte(atyp), 0, 0, 0, 0}
		if werr := writeAll(h.conn, reply); werr != nil {
			return werr
		}
		return &ConnectionError{Msg: "failed to dial target " + net.JoinHostPort(host, strconv.Itoa(int(port))), Err: err}
	}
	defer target.Close()

	success := []byte{protocolVersion, byte(replySucceeded), 0x00, byte(atypIPv4), 0, 0, 0, 0, 0, 0}
	if err := writeAll(h.conn, success); err != nil {
		return err
	}
	h.log.WithField("target", target.RemoteAddr().String()).Info("dial succeeded, relaying")

	return h.relay(target)
}

func (h *Handler) dial(ctx context.Context, host string, atyp addressType, port uint16) (net.Conn, error) {
	var d net.Dialer
	if atyp != atypDomain {
		addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
		return d.DialContext(ctx, "tcp", addr)
	}

	addrs, err := h.cache.Resolve(ctx, host, port)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, addr := range addrs {
		conn, derr := d.DialContext(ctx, "tcp", addr)
		if derr == nil {
			return conn, nil
		}
		lastErr = derr
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses resolved")
	}
	return nil, lastErr
}

// relay performs the full-duplex byte copy between the client and
// target sockets. When one direction reaches EOF or fails, the write
// side of its destination is half-closed where supported; relay returns
// only after both directions have ended. Relay errors are logged, not
// returned.
func (h *Handler) relay(target net.Conn) error {
	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(target, h.conn)
		shutdownWrite(target)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(h.conn, target)
		shutdownWrite(h.conn)
		errc <- err
	}()

	var relayErr error
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil && relayErr == nil {
			relayErr = err
		}
	}

	if relayErr != nil {
		h.log.WithError(relayErr).Warn("relay ended with error")
	} else {
		h.log.Info("relay completed")
	}
	return nil
}

// shutdownWrite half-closes conn for writing if it supports it, so the
// peer sees EOF without fully closing the socket out from under the
// other relay goroutine.
func shutdownWrite(conn net.Conn) {
	if tc, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
}

func readFull(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &IoError{Err: err}
	}
	return buf, nil
}

func writeAll(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return &IoError{Err: err}
	}
	return nil
}
