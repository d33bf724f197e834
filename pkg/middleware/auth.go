package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"onelink/pkg/logging"

	"github.com/google/uuid"
)

var (
	ErrNoCredentials = errors.New("no credentials")
	ErrInvalidToken  = errors.New("invalid token")
)

// CredentialSource tells where a principal's credentials were read from.
type CredentialSource string

const (
	SourceBearer CredentialSource = "bearer"
	SourceCookie CredentialSource = "cookie"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Source CredentialSource
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromContext returns uuid.Nil for anonymous requests.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID
	}
	return uuid.Nil
}

// RequireAuth rejects requests the authenticator cannot resolve with 401.
func RequireAuth(auth Authenticator, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authenticate(r)
			if err != nil {
				if !errors.Is(err, ErrNoCredentials) {
					logger.LogAuthEvent(r.Context(), "authenticate", "", false)
					logger.Debug(r.Context(), "token rejected", "error", err)
				}
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
