package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Subject       string `json:"sub"`
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier verifies id tokens against a remote key set. Keys are
// fetched on first use.
func NewOIDCVerifier(ctx context.Context, issuer, jwksURL, clientID string) IDVerifier {
	keys := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &oidcVerifier{
		verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID}),
	}
}

func (v *oidcVerifier) Verify(ctx context.Context, rawIDToken string) (string, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}

	var claims idClaims
	if err := token.Claims(&claims); err != nil {
		return "", fmt.Errorf("parsing claims: %w", err)
	}
	if claims.Email == "" {
		if claims.Subject == "" {
			return "", errors.New("id token names no account")
		}
		return claims.Subject, nil
	}
	return claims.Email, nil
}
