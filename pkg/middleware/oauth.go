package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
)

type OAuthConfig struct {
	IssuerURL string
	Audience  string
}

// OIDCAuthenticator accepts bearer ID tokens issued by the configured provider.
// The subject claim must be the user's uuid.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

type oidcClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// NewOIDCAuthenticator discovers the provider, which needs network access.
func NewOIDCAuthenticator(ctx context.Context, config OAuthConfig) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return NewOIDCAuthenticatorWithVerifier(provider.Verifier(&oidc.Config{
		ClientID: config.Audience,
	})), nil
}

func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier}
}

func (a *OIDCAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Principal{}, ErrNoCredentials
	}

	token, err := a.verifier.Verify(r.Context(), raw)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims oidcClaims
	if err := token.Claims(&claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return Principal{UserID: id, Email: claims.Email, Source: SourceBearer}, nil
}
