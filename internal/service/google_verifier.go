package service

import (
	"context"
	"fmt"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"

	"github.com/stpaulclark/merit-api/internal/models"
)

type identityVerifier interface {
	Verify(ctx context.Context, idToken string) (*models.Identity, error)
}

// GoogleVerifier validates Google ID tokens against the configured OAuth
// client and extracts the claims the role resolver needs.
type GoogleVerifier struct {
	clientID string
}

// NewGoogleVerifier constructs a verifier bound to one OAuth client.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

// Verify checks the token signature, audience and expiry, then decodes the
// identity claims.
func (g *GoogleVerifier) Verify(_ context.Context, idToken string) (*models.Identity, error) {
	v := googleAuthIDTokenVerifier.Verifier{}
	if err := v.VerifyIDToken(idToken, []string{g.clientID}); err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	claimSet, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return nil, fmt.Errorf("decode id token: %w", err)
	}
	return &models.Identity{
		Subject:  claimSet.Sub,
		Email:    claimSet.Email,
		FullName: claimSet.Name,
	}, nil
}
