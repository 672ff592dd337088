package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/nikhilbhutani/intranet/internal/identity"
)

// OIDCVerifier validates ID tokens issued by the corporate identity provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuer and verifies tokens minted
// for clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func NewOIDCVerifierFromKeySet(issuer, clientID string, keys oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

type idTokenClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	ObjectID          string `json:"oid"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (identity.Claims, error) {
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return identity.Claims{}, fmt.Errorf("verify id token: %w", err)
	}

	var c idTokenClaims
	if err := tok.Claims(&c); err != nil {
		return identity.Claims{}, fmt.Errorf("decode id token claims: %w", err)
	}

	subject := c.ObjectID
	if subject == "" {
		subject = tok.Subject
	}
	email := c.Email
	if email == "" {
		email = c.PreferredUsername
	}
	return identity.Claims{Subject: subject, Email: email, Name: c.Name}, nil
}
