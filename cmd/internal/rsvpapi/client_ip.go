package rsvpapi

import (
	"net"
	"net/http"
	"strings"

	"rsvp/cmd/security/token"
)

// clientIP resolves the caller address. Forwarding headers are honored only
// when the deployment sits behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func rateKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

// limiterKey pseudonymizes the caller address so neither the limiter map nor
// the logs hold raw IPs.
func (h *Handler) limiterKey(ip net.IP) string {
	return token.HashHMACSHA256Hex(rateKey(ip), h.ipKey)
}
