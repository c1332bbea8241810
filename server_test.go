package socks5d

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForAddr polls until the server has bound its listening socket,
// returning its address.
func waitForAddr(t *testing.T, srv *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != nil {
			return addr
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("server never bound a listening address")
	return nil
}

func TestServer_RejectsNonWhitelistedSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.AllowAnonymous = true
	cfg.IPWhitelist = []string{"10.0.0.0/8"} // excludes loopback

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	go srv.ListenAndServe()
	defer srv.Close()

	addr := waitForAddr(t, srv)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestServer_AllowsWhitelistedSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.AllowAnonymous = true
	cfg.IPWhitelist = []string{"127.0.0.1/32"}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	go srv.ListenAndServe()
	defer srv.Close()

	addr := waitForAddr(t, srv)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x05, 0x01, byte(authNoneRequired)})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reply := make([]byte, 2)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, byte(authNoneRequired)}, reply)
}

func TestServer_RejectsBeyondMaxConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.AllowAnonymous = true
	cfg.MaxConnections = 1

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	go srv.ListenAndServe()
	defer srv.Close()

	addr := waitForAddr(t, srv)

	first, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer first.Close()

	// give the accept loop time to admit the first connection before the
	// second one arrives.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.ActiveConnections() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	require.EqualValues(t, 1, srv.ActiveConnections())

	second, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.Equal(t, io.EOF, err)
}
