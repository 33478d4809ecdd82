package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var loopbackPrefixes = []string{
	"127.0.0.0/8",
	"::1/128",
}

// clientIPResolver honors X-Forwarded-For only when the direct peer is a
// trusted proxy.
type clientIPResolver struct {
	trusted []netip.Prefix
}

func newClientIPResolver(trustedProxies []string) clientIPResolver {
	if len(trustedProxies) == 0 {
		trustedProxies = loopbackPrefixes
	}
	return clientIPResolver{trusted: parsePrefixes(trustedProxies)}
}

func (c clientIPResolver) trustXForwardedFor(r *http.Request) bool {
	return prefixesContain(c.trusted, remoteHost(r))
}

func (c clientIPResolver) clientIPFromRequest(r *http.Request) string {
	if c.trustXForwardedFor(r) {
		if forwarded := firstHeaderToken(r.Header.Values("X-Forwarded-For")); forwarded != "" {
			return forwarded
		}
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func firstHeaderToken(values []string) string {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return ""
}

// parsePrefixes accepts CIDR blocks and bare addresses. Invalid entries are
// logged and skipped.
func parsePrefixes(entries []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			slog.Warn("invalid CIDR entry; ignoring", "cidr", value, "error", err)
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func prefixesContain(prefixes []netip.Prefix, host string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
