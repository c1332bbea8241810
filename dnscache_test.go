package socks5d

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSCache_ResolveHitsAfterInsert(t *testing.T) {
	c := NewDNSCache(10, time.Minute)

	addrs1, err := c.Resolve(context.Background(), "localhost", 80)
	require.NoError(t, err)
	require.NotEmpty(t, addrs1)
	assert.EqualValues(t, 1, c.metrics.miss.Value())
	assert.EqualValues(t, 1, c.metrics.insert.Value())

	addrs2, err := c.Resolve(context.Background(), "localhost", 80)
	require.NoError(t, err)
	assert.Equal(t, addrs1, addrs2)
	assert.EqualValues(t, 1, c.metrics.hit.Value())
	assert.EqualValues(t, 1, c.metrics.miss.Value())
}

func TestDNSCache_EntryExpiresAfterTTL(t *testing.T) {
	c := NewDNSCache(10, 20*time.Millisecond)

	_, err := c.Resolve(context.Background(), "localhost", 80)
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.metrics.miss.Value())

	time.Sleep(40 * time.Millisecond)

	_, err = c.Resolve(context.Background(), "localhost", 80)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.metrics.miss.Value())
}

func TestDNSCache_DistinctPortsAreDistinctKeys(t *testing.T) {
	c := NewDNSCache(10, time.Minute)

	_, err := c.Resolve(context.Background(), "localhost", 80)
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "localhost", 443)
	require.NoError(t, err)

	assert.EqualValues(t, 2, c.metrics.miss.Value())
	assert.Equal(t, 2, c.lru.size())
}

func TestNormalizeHostname_ASCIIPassthrough(t *testing.T) {
	got, err := normalizeHostname("example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)
}

func TestNormalizeHostname_IDNAConvertsNonASCII(t *testing.T) {
	got, err := normalizeHostname("mañana.example")
	require.NoError(t, err)
	assert.NotEqual(t, "mañana.example", got)
	assert.Contains(t, got, "xn--")
}
