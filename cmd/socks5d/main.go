package main

import (
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quietproxy/socks5d"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string

	address        string
	port           uint16
	allowAnonymous bool
	username       string
	password       string

	dnsCacheCapacity int
	dnsCacheTTLSecs  int
	maxConnections   int
	ipWhitelist      []string

	logLevel      string
	syslogAddress string
}

func main() {
	var opt options
	defaults := socks5d.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "socks5d",
		Short: "A lightweight SOCKS5 proxy server",
		Long: `socks5d is a lightweight SOCKS version 5 proxy server.

It accepts inbound TCP connections, negotiates an authentication method,
parses a CONNECT request, resolves and dials the requested target
through a TTL-bounded DNS cache, and relays bytes bidirectionally between
the client and the target until either side closes.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, cmd.Flags().Changed)
		},
	}

	cmd.Flags().StringVar(&opt.configPath, "config", "", "path to an optional TOML config file")
	cmd.Flags().StringVar(&opt.address, "address", defaults.Address, "address to bind the server to")
	cmd.Flags().Uint16VarP(&opt.port, "port", "p", defaults.Port, "port to bind the server to")
	cmd.Flags().BoolVarP(&opt.allowAnonymous, "allow-anonymous", "a", defaults.AllowAnonymous, "enable anonymous (no-auth) access")
	cmd.Flags().StringVarP(&opt.username, "username", "u", "", "username for password authentication")
	cmd.Flags().StringVarP(&opt.password, "password", "P", "", "password for password authentication")
	cmd.Flags().IntVar(&opt.dnsCacheCapacity, "dns-cache-capacity", defaults.DNSCacheCapacity, "max entries in the DNS resolution cache")
	cmd.Flags().IntVar(&opt.dnsCacheTTLSecs, "dns-cache-ttl-secs", int(defaults.DNSCacheTTL.Seconds()), "DNS cache entry TTL in seconds")
	cmd.Flags().IntVar(&opt.maxConnections, "max-connections", defaults.MaxConnections, "max simultaneous client connections")
	cmd.Flags().StringArrayVar(&opt.ipWhitelist, "ip-whitelist", nil, "source IP whitelist rule (CIDR or wildcard); repeatable")
	cmd.Flags().StringVarP(&opt.logLevel, "log-level", "l", defaults.LogLevel, "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opt.syslogAddress, "syslog-address", "", "forward logs to this syslog address in addition to stderr")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run assembles the final ServerConfig in defaults -> config file -> CLI
// flags precedence order: a flag only overrides the file when the user
// actually passed it (changed reports that via cmd.Flags().Changed), so
// an unset flag's zero-value default never clobbers a value set in the
// config file.
func run(opt options, changed func(name string) bool) error {
	cfg := socks5d.DefaultConfig()

	cfg, err := loadConfigFile(opt.configPath, cfg)
	if err != nil {
		return err
	}

	if changed("address") {
		cfg.Address = opt.address
	}
	if changed("port") {
		cfg.Port = opt.port
	}
	if changed("allow-anonymous") {
		cfg.AllowAnonymous = opt.allowAnonymous
	}
	if changed("username") {
		cfg.Username = opt.username
	}
	if changed("password") {
		cfg.Password = opt.password
	}
	if changed("dns-cache-capacity") {
		cfg.DNSCacheCapacity = opt.dnsCacheCapacity
	}
	if changed("dns-cache-ttl-secs") {
		cfg.DNSCacheTTL = time.Duration(opt.dnsCacheTTLSecs) * time.Second
	}
	if changed("max-connections") {
		cfg.MaxConnections = opt.maxConnections
	}
	if changed("ip-whitelist") {
		cfg.IPWhitelist = opt.ipWhitelist
	}
	if changed("log-level") {
		cfg.LogLevel = opt.logLevel
	}
	if changed("syslog-address") {
		cfg.SyslogAddress = opt.syslogAddress
	}

	srv, err := socks5d.NewServer(cfg)
	if err != nil {
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		socks5d.Log.Info("shutdown signal received, closing listener")
		srv.Close()
	}()

	err = srv.ListenAndServe()
	if errors.Is(err, net.ErrClosed) {
		// the signal handler closed the listener: a clean shutdown
		return nil
	}
	return err
}
