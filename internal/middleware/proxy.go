package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tsubasa-k/Single-Login/internal/trust"
)

// TrustedProxies configures Echo to trust reverse proxy headers
// (X-Forwarded-For, X-Real-IP) from specific IP ranges.
//
// Single-Login's trust decisions, rate limiting, and audit trail all key on
// the client address. Without this config, c.RealIP() would return the
// proxy's IP for every request and every caller would share one trust fate.
// Only connections arriving from the given prefixes may assert a forwarded
// client address.
func TrustedProxies(e *echo.Echo, proxies *trust.CIDRSet) {
	// Echo's IPExtractor determines how c.RealIP() resolves the client IP.
	// We use a custom extractor that checks X-Real-IP and X-Forwarded-For
	// headers only when the direct connection comes from a trusted proxy.
	e.IPExtractor = buildIPExtractor(proxies)
}

// buildIPExtractor returns an Echo IPExtractor that trusts forwarding
// headers only from connections originating inside the proxy CIDR set.
func buildIPExtractor(proxies *trust.CIDRSet) echo.IPExtractor {
	return func(req *http.Request) string {
		// Get the direct connection IP (peer address).
		directIP := extractDirectIP(req.RemoteAddr)

		// Only trust forwarding headers if the direct connection is from a proxy.
		if !proxies.Contains(directIP) {
			return directIP
		}

		// Try X-Real-IP first (set by many reverse proxies including nginx).
		if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}

		// Fall back to X-Forwarded-For (comma-separated list, leftmost = client).
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.SplitN(xff, ",", 2)
			if len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}

		return directIP
	}
}

// extractDirectIP extracts the IP address from a "host:port" RemoteAddr string.
func extractDirectIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
