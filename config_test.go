package socks5d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultIsValidWithWarning(t *testing.T) {
	cfg := DefaultConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	// no auth method is configured by default (anonymous off, no password)
	assert.Len(t, warnings, 1)
}

func TestConfig_HasPasswordAuth(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.HasPasswordAuth())

	cfg.Username = "alice"
	assert.False(t, cfg.HasPasswordAuth())

	cfg.Password = "hunter2"
	assert.True(t, cfg.HasPasswordAuth())
}

func TestConfig_PartialCredentialsWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowAnonymous = true
	cfg.Username = "alice"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "only one of username/password")
}

func TestConfig_RejectsZeroPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_RejectsNonPositiveMaxConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 0
	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_RejectsNegativeDNSCacheCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DNSCacheCapacity = -1
	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_FullyConfiguredHasNoWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowAnonymous = true
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
