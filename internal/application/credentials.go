package application

import (
	"context"

	"text-assistant/internal/domain"
)

// ConsentFlow obtains a fresh token pair through interactive user consent.
type ConsentFlow interface {
	Authorize(ctx context.Context, secret domain.ClientSecret, scopes []string) (domain.TokenPair, error)
}

type CredentialProvider interface {
	GetValidCredential(ctx context.Context) (domain.Credential, error)
}
