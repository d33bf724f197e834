package middleware

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"onelink/pkg/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.test"

type idTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func newTestOIDC(t *testing.T) (*OIDCAuthenticator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: "onelink"})
	return NewOIDCAuthenticatorWithVerifier(verifier), key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, sub, audience string, exp time.Time) string {
	t.Helper()
	claims := idTokenClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   sub,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOIDCAuthenticator(t *testing.T) {
	auth, key := newTestOIDC(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	userID := uuid.New()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid token", "Bearer " + signIDToken(t, key, userID.String(), "onelink", future), nil},
		{"missing header", "", ErrNoCredentials},
		{"wrong scheme", "Basic abc", ErrNoCredentials},
		{"garbage token", "Bearer not-a-jwt", ErrInvalidToken},
		{"wrong audience", "Bearer " + signIDToken(t, key, userID.String(), "someone-else", future), ErrInvalidToken},
		{"expired", "Bearer " + signIDToken(t, key, userID.String(), "onelink", time.Now().Add(-time.Hour)), ErrInvalidToken},
		{"foreign key", "Bearer " + signIDToken(t, otherKey, userID.String(), "onelink", future), ErrInvalidToken},
		{"subject not a uuid", "Bearer " + signIDToken(t, key, "auth0|123", "onelink", future), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			p, err := auth.Authenticate(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, p.UserID)
			assert.Equal(t, "user@example.com", p.Email)
			assert.Equal(t, SourceBearer, p.Source)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	auth, key := newTestOIDC(t)
	userID := uuid.New()

	var seen uuid.UUID
	handler := RequireAuth(auth, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/links", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
	})

	t.Run("stores principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req.Header.Set("Authorization", "Bearer "+signIDToken(t, key, userID.String(), "onelink", time.Now().Add(time.Hour)))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, userID, seen)
	})
}

func TestUserIDFromContextAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, uuid.Nil, UserIDFromContext(req.Context()))
}
