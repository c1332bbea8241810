package socks5d

import (
	"net"
	"strconv"
	"strings"
)

// Rule is a single parsed whitelist entry: either a CIDR network or an
// IPv4 dotted-wildcard pattern.
type Rule struct {
	cidr     *net.IPNet
	wildcard []string // nil unless this is a WildcardV4 rule
}

// IPFilter is a compiled, ordered whitelist of source-IP rules. The zero
// value (no rules) allows every address, matching spec.md §4.2.
type IPFilter struct {
	rules []Rule
}

// NewIPFilter parses an ordered sequence of pattern strings into an
// IPFilter. Each pattern is tried as CIDR first, then as an IPv4
// wildcard; a pattern matching neither fails construction.
func NewIPFilter(patterns []string) (*IPFilter, error) {
	f := &IPFilter{}
	for _, p := range patterns {
		r, err := parseRule(p)
		if err != nil {
			return nil, &Unknown{Msg: "invalid IP whitelist rule '" + p + "': " + err.Error()}
		}
		f.rules = append(f.rules, r)
	}
	return f, nil
}

func parseRule(pattern string) (Rule, error) {
	if _, network, err := net.ParseCIDR(pattern); err == nil {
		return Rule{cidr: network}, nil
	}
	if segs, ok := ipv4WildcardSegments(pattern); ok {
		return Rule{wildcard: segs}, nil
	}
	return Rule{}, &Unknown{Msg: "neither valid CIDR nor valid IPv4 wildcard"}
}

// ipv4WildcardSegments splits pattern on '.' and validates that it has
// between 1 and 4 segments, each either "*" or a decimal in [0,255].
func ipv4WildcardSegments(pattern string) ([]string, bool) {
	segs := strings.Split(pattern, ".")
	if len(segs) < 1 || len(segs) > 4 {
		return nil, false
	}
	for _, s := range segs {
		if s == "*" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 255 {
			return nil, false
		}
	}
	return segs, true
}

// Allows reports whether ip is permitted by the filter. An empty rule
// set allows everything; otherwise the predicate is true iff any rule
// matches.
func (f *IPFilter) Allows(ip net.IP) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}
	for _, r := range f.rules {
		if r.matches(ip) {
			return true
		}
	}
	return false
}

func (r Rule) matches(ip net.IP) bool {
	if r.cidr != nil {
		return r.cidr.Contains(ip)
	}
	return wildcardMatches(r.wildcard, ip)
}

// wildcardMatches requires ip to be an IPv4 address and the segment
// counts to match exactly: "10.*" never matches "10.0.0.1".
func wildcardMatches(pattern []string, ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	ipSegs := strings.Split(v4.String(), ".")
	if len(ipSegs) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != ipSegs[i] {
			return false
		}
	}
	return true
}
