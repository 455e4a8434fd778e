// Package cidr parses address allow-lists such as the trusted proxy list and
// answers membership checks against them.
package cidr

import (
	"fmt"
	"net/netip"
	"strings"
)

// ParsePrefixOrAddr parses a string as either a CIDR prefix ("10.0.0.0/8")
// or a bare address ("10.1.2.5" becomes 10.1.2.5/32, "::1" becomes ::1/128).
// Prefixes are returned masked.
func ParsePrefixOrAddr(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	if a, err := netip.ParseAddr(s); err == nil {
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), nil
	}
	return netip.Prefix{}, fmt.Errorf("invalid CIDR or IP: %q", s)
}

// ParseList parses a comma-separated allow-list. Blank entries are skipped;
// the first invalid entry fails the whole list.
func ParseList(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := ParsePrefixOrAddr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ContainsAddr reports whether any prefix in list contains addr. IPv4-mapped
// IPv6 addresses match their IPv4 prefixes.
func ContainsAddr(list []netip.Prefix, addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range list {
		if p.IsValid() && p.Contains(addr) {
			return true
		}
	}
	return false
}
