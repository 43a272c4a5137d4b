package mcpserver

import (
	"net"
	"net/http"
	"strings"
)

const requestIDHeader = "X-Request-ID"

// clientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if candidate := strings.TrimSpace(first); candidate != "" {
			return candidate
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return h.Get(requestIDHeader)
}
