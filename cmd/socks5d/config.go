package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/quietproxy/socks5d"
)

// fileConfig mirrors the on-disk layer of socks5d.ServerConfig using
// toml tags, following the teacher's cmd/routedns/config.go convention
// of a plain struct decoded straight off disk. Flags set explicitly on
// the command line always override values loaded from this file.
type fileConfig struct {
	Address string `toml:"address"`
	Port    uint16 `toml:"port"`

	AllowAnonymous bool   `toml:"allow-anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`

	DNSCacheCapacity int `toml:"dns-cache-capacity"`
	DNSCacheTTLSecs  int `toml:"dns-cache-ttl-secs"`

	MaxConnections int      `toml:"max-connections"`
	IPWhitelist    []string `toml:"ip-whitelist"`

	LogLevel      string `toml:"log-level"`
	SyslogAddress string `toml:"syslog-address"`
}

// loadConfigFile decodes a TOML config file into a ServerConfig layered
// on top of base. An empty path is a no-op.
func loadConfigFile(path string, base socks5d.ServerConfig) (socks5d.ServerConfig, error) {
	if path == "" {
		return base, nil
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}

	cfg := base
	if fc.Address != "" {
		cfg.Address = fc.Address
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	cfg.AllowAnonymous = cfg.AllowAnonymous || fc.AllowAnonymous
	if fc.Username != "" {
		cfg.Username = fc.Username
	}
	if fc.Password != "" {
		cfg.Password = fc.Password
	}
	if fc.DNSCacheCapacity != 0 {
		cfg.DNSCacheCapacity = fc.DNSCacheCapacity
	}
	if fc.DNSCacheTTLSecs != 0 {
		cfg.DNSCacheTTL = time.Duration(fc.DNSCacheTTLSecs) * time.Second
	}
	if fc.MaxConnections != 0 {
		cfg.MaxConnections = fc.MaxConnections
	}
	if len(fc.IPWhitelist) > 0 {
		cfg.IPWhitelist = fc.IPWhitelist
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.SyslogAddress != "" {
		cfg.SyslogAddress = fc.SyslogAddress
	}
	return cfg, nil
}
