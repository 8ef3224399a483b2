package port

import (
	"context"

	"authn-service/app/domain"
)

// UserRepository is the application user directory. A credential backend
// proves an identity; membership here is what authorizes it.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CredentialRepository stores local login credentials for the simple
// backend. Lookups are keyed by the canonical login form.
type CredentialRepository interface {
	FindByLogin(ctx context.Context, login string) (*domain.Credential, error)
	Insert(ctx context.Context, cred *domain.Credential) error
}
