package handlers

import (
	"net"
	"net/http"
	"strings"
)

// AllowedHosts rejects requests whose Host header matches none of the
// patterns. A pattern is an exact host name, "*" for any host, or a name
// starting with "." which matches that domain and every subdomain. An
// empty pattern list allows nothing.
func AllowedHosts(patterns []string) func(http.Handler) http.Handler {
	normalized := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" {
			normalized = append(normalized, pattern)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(requestHost(r.Host), normalized) {
				writeError(w, http.StatusBadRequest, "Bad Request (400)")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestHost(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	return strings.ToLower(host)
}

func hostAllowed(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, pattern := range patterns {
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if host == pattern[1:] || strings.HasSuffix(host, pattern) {
				return true
			}
		case host == pattern:
			return true
		}
	}
	return false
}
