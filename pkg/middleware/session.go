package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const SessionCookieName = "session"

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionAuthenticator accepts HS256 session tokens from the session cookie or a
// bearer header. The cookie wins when both are present.
type SessionAuthenticator struct {
	secret []byte
	now    func() time.Time
}

func NewSessionAuthenticator(secret string) *SessionAuthenticator {
	return &SessionAuthenticator{secret: []byte(secret), now: time.Now}
}

func (a *SessionAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	raw, source := "", SourceCookie
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		raw = c.Value
	} else if tok, ok := bearerToken(r); ok {
		raw, source = tok, SourceBearer
	} else {
		return Principal{}, ErrNoCredentials
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return Principal{UserID: id, Email: claims.Email, Source: source}, nil
}

// Issue signs a session token for userID that expires after ttl.
func (a *SessionAuthenticator) Issue(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
