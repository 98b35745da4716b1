package server

import (
	"net"
	"net/http"
)

// isAllowedIP checks whether the IP address falls inside one of the allowed
// CIDR subnetworks.
func isAllowedIP(ip string, allowedCIDRs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, cidr := range allowedCIDRs {
		_, netblock, err := net.ParseCIDR(cidr)
		if err != nil {
			// Skip invalid CIDR
			continue
		}
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}

// adminOnly gates mutating admin endpoints (manual pool distribution,
// blacklisting) behind the configured CIDR allowlist.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !isAllowedIP(host, s.allowedCIDRs) {
			s.log.Warn("admin endpoint rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, APIResponse{Success: false, Message: "Forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
