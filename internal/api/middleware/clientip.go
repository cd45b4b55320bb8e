package middleware

import (
	"net/http"
	"net/netip"
	"strings"
)

type trustedProxies []netip.Prefix

// parseProxies drops entries that are not valid CIDR prefixes.
func parseProxies(cidrs []string) trustedProxies {
	var out trustedProxies
	for _, c := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func (p trustedProxies) trusts(addr netip.Addr) bool {
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address. X-Forwarded-For (first hop) and then
// X-Real-IP are honored only when the peer is a trusted proxy.
func (p trustedProxies) clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	peer := r.RemoteAddr
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		peer = addrPort.Addr().String()
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !p.trusts(addr.Unmap()) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if hop := strings.TrimSpace(first); hop != "" {
			return hop
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

// ClientIP returns the caller's address, honoring forwarding headers only
// from trusted proxies. Sessions record it at sign-in.
func ClientIP(r *http.Request, trustedProxyCIDRs []string) string {
	return parseProxies(trustedProxyCIDRs).clientIP(r)
}
