package socks5d

import (
	"context"
	"expvar"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// dnsCacheInstanceSeq gives each DNSCache its own expvar namespace so
// per-instance counters (notably in tests, which construct many caches
// in one process) never share a registered *expvar.Int with another
// instance.
var dnsCacheInstanceSeq int64

// DNSCache is a bounded, TTL-expiring cache mapping "host:port" keys to
// ordered address sequences. It wraps the host-OS resolver and is safe
// for concurrent use.
type DNSCache struct {
	ttl      time.Duration
	resolver *net.Resolver

	mu      sync.Mutex
	lru     *lruCache
	metrics *dnsCacheMetrics
}

// NewDNSCache returns a DNSCache bounded to capacity entries (0 or
// negative means unlimited) with the given TTL. A background goroutine
// periodically evicts expired entries so the cache doesn't grow stale
// under access patterns that never re-touch an old key.
func NewDNSCache(capacity int, ttl time.Duration) *DNSCache {
	id := strconv.FormatInt(atomic.AddInt64(&dnsCacheInstanceSeq, 1), 10)
	c := &DNSCache{
		ttl:      ttl,
		resolver: net.DefaultResolver,
		lru:      newLRUCache(capacity),
		metrics:  newDNSCacheMetrics(id),
	}
	go c.startGC(time.Minute)
	return c
}

// Resolve returns the ordered address sequence for host:port, serving
// from cache on a hit or invoking the resolver and inserting on a miss.
// Concurrent misses for the same key may both resolve and insert; the
// later insert simply overwrites the earlier one (no single-flight, per
// spec.md §4.1).
func (c *DNSCache) Resolve(ctx context.Context, host string, port uint16) ([]string, error) {
	asciiHost, err := normalizeHostname(host)
	if err != nil {
		return nil, &InvalidRequestFormat{Reason: "invalid hostname: " + err.Error()}
	}

	key := asciiHost + ":" + strconv.Itoa(int(port))

	c.mu.Lock()
	entry := c.lru.get(key)
	c.mu.Unlock()
	if entry != nil && time.Now().Before(entry.Expiry) {
		Log.WithFields(map[string]interface{}{"key": key, "addrs": len(entry.Addrs)}).Debug("dns cache hit")
		c.metrics.hit.Add(1)
		return entry.Addrs, nil
	}
	Log.WithFields(map[string]interface{}{"key": key}).Debug("dns cache miss")
	c.metrics.miss.Add(1)

	ipAddrs, err := c.resolver.LookupIPAddr(ctx, asciiHost)
	if err != nil {
		return nil, &ConnectionError{Msg: "dns lookup failed for " + asciiHost, Err: err}
	}
	portStr := strconv.Itoa(int(port))
	addrs := make([]string, 0, len(ipAddrs))
	for _, ip := range ipAddrs {
		addrs = append(addrs, net.JoinHostPort(ip.String(), portStr))
	}

	c.mu.Lock()
	c.lru.add(key, &cacheEntry{Addrs: addrs, Expiry: time.Now().Add(c.ttl)})
	size := c.lru.size()
	c.mu.Unlock()

	Log.WithFields(map[string]interface{}{"key": key, "addrs": len(addrs)}).Debug("dns cache insert")
	c.metrics.insert.Add(1)
	c.metrics.entries.Set(int64(size))
	return addrs, nil
}

// startGC periodically sweeps the cache for entries past their TTL,
// mirroring the teacher's memoryBackend.startGC loop.
func (c *DNSCache) startGC(period time.Duration) {
	for {
		time.Sleep(period)
		now := time.Now()
		c.mu.Lock()
		total, removed := c.lru.deleteFunc(func(e *cacheEntry) bool {
			return now.After(e.Expiry)
		})
		c.metrics.entries.Set(int64(c.lru.size()))
		c.mu.Unlock()
		if removed > 0 {
			Log.WithFields(map[string]interface{}{"total": total, "removed": removed}).Debug("dns cache garbage collection")
		}
	}
}

// normalizeHostname converts a non-ASCII (internationalized) hostname to
// its ASCII (punycode) form via IDNA2008, leaving ASCII hostnames
// untouched so the cache key and lookup are identical to the literal
// wire value in the common case.
func normalizeHostname(host string) (string, error) {
	for _, r := range host {
		if r > unicode.MaxASCII {
			ascii, err := idna.Lookup.ToASCII(host)
			if err != nil {
				return "", errors.Wrap(err, "idna conversion failed")
			}
			return ascii, nil
		}
	}
	return host, nil
}

type dnsCacheMetrics struct {
	hit     *expvar.Int
	miss    *expvar.Int
	insert  *expvar.Int
	entries *expvar.Int
}

func newDNSCacheMetrics(id string) *dnsCacheMetrics {
	return &dnsCacheMetrics{
		hit:     getVarInt("dnscache", id, "hit"),
		miss:    getVarInt("dnscache", id, "miss"),
		insert:  getVarInt("dnscache", id, "insert"),
		entries: getVarInt("dnscache", id, "entries"),
	}
}
