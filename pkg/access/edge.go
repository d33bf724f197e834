package access

import (
	"errors"
	"net/http"
	"strings"

	"onelink/pkg/ratelimit"
)

var (
	gatedPrefixes  = []string{"/api/", "/s/", "/browse"}
	strictPrefixes = []string{"/api/upload", "/api/auth"}
	exemptPrefixes = []string{"/static/", "/assets/"}
)

// EdgeMiddleware applies the coarse IP-keyed policy to gated paths before routing.
func (g *Gate) EdgeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !isGatedPath(path) {
			next.ServeHTTP(w, r)
			return
		}

		namespace := "general:"
		if hasAnyPrefix(path, strictPrefixes) {
			namespace = "strict:"
		}

		d, err := g.AuthorizeIdentifier(r.Context(), ratelimit.ClassEdge, namespace+ClientIP(r))
		var limited *RateLimitError
		switch {
		case errors.As(err, &limited):
			WriteDenied(w, limited.Decision)
			return
		case err != nil:
			g.logger.Error(r.Context(), "edge rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		d.WriteHeaders(w)
		next.ServeHTTP(w, r)
	})
}

func isGatedPath(path string) bool {
	if hasAnyPrefix(path, exemptPrefixes) || strings.Contains(path, ".") {
		return false
	}
	return hasAnyPrefix(path, gatedPrefixes)
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
