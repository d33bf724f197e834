package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"onelink/pkg/middleware"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

func GenerateToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// CSRFMiddleware protects cookie-authenticated requests with a double-submit token:
// a mutating request must echo the csrf cookie in the X-CSRF-Token header. Bearer
// authenticated requests are not subject to the check. Safe requests without a
// token cookie get one. Must run after middleware.RequireAuth.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CSRFCookieName)
		hasCookie := err == nil && cookie.Value != ""

		if isSafeMethod(r.Method) {
			if !hasCookie {
				if token, err := GenerateToken(); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:     CSRFCookieName,
						Value:    token,
						Path:     "/",
						Secure:   r.TLS != nil,
						SameSite: http.SameSiteStrictMode,
					})
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		p, ok := middleware.PrincipalFromContext(r.Context())
		if ok && p.Source == middleware.SourceCookie {
			header := r.Header.Get(CSRFHeaderName)
			if !hasCookie || header == "" ||
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
