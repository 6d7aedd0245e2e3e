package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"idecide/pkg/requestcontext"
)

// Metadata captures client IP and a parsed user-agent description for rate
// limiting and audit events.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), clientIP(r))
		ctx = requestcontext.WithUserAgent(ctx, describeUserAgent(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// describeUserAgent condenses a raw User-Agent into "browser/version (os)"
// for audit events; raw UA strings are too noisy to store.
func describeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	return fmt.Sprintf("%s/%s (%s)", name, version, ua.OS())
}
