package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address used to key reconciliation rate limits.
// Only RemoteAddr is read: the router's RealIP middleware has already
// rewritten it from proxy headers, and reading them again here would let a
// client pick its own bucket. IPv6 callers are keyed by their /64 prefix since
// a single host usually controls the whole prefix.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	addr = addr.Unmap()
	if addr.Is6() {
		prefix, err := addr.WithZone("").Prefix(64)
		if err == nil {
			return prefix.String()
		}
	}
	return addr.String()
}
