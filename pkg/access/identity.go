package access

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// AnonymousIdentity is shared by every caller whose address cannot be determined.
const AnonymousIdentity = "anonymous"

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then AnonymousIdentity.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return AnonymousIdentity
}

// UserIdentifier is the limiter identifier for an authenticated user.
func UserIdentifier(id uuid.UUID) string {
	return "user:" + id.String()
}
