package httpapi

import (
	"net"
	"net/http"
	"strings"
)

// isLANAddr reports whether host (an IP, possibly with port already
// stripped) is loopback or inside the RFC1918 private ranges. Staff
// surfaces are reachable only from the venue network.
func isLANAddr(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP middleware may have already stripped the port.
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// requireLAN rejects staff-surface requests from outside the LAN with 403
// before any session check runs.
func requireLAN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLANAddr(remoteHost(r)) {
			writeError(w, CodeForbidden, "staff endpoints are only reachable from the local network")
			return
		}
		next.ServeHTTP(w, r)
	})
}
