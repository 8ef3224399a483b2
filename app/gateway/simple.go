package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"authn-service/app/domain"
	"authn-service/app/port"
	"authn-service/app/utils/password"
)

// SimpleBackend authenticates against locally stored password hashes. It
// is the only backend that supports user creation.
type SimpleBackend struct {
	credentials port.CredentialRepository
	logger      *slog.Logger
}

// NewSimpleBackend creates the password backend over the given credential
// store.
func NewSimpleBackend(credentials port.CredentialRepository, logger *slog.Logger) port.AuthnBackend {
	return &SimpleBackend{
		credentials: credentials,
		logger:      logger.With("backend", "simple"),
	}
}

// Authenticate looks up the credential row by canonical login and
// verifies the supplied password against the stored scrypt hash. The
// stored display email is returned on success.
func (b *SimpleBackend) Authenticate(ctx context.Context, username, pass string) (string, error) {
	login, err := domain.CanonicalLogin(username)
	if err != nil {
		return "", domain.ErrInvalidUser
	}

	cred, err := b.credentials.FindByLogin(ctx, login)
	if err != nil {
		b.logger.Error("credential lookup failed", "error", err)
		return "", domain.ErrAuthnInternal
	}
	if cred == nil || cred.PasswordHash == "" {
		return "", domain.ErrInvalidUser
	}

	if !password.Verify(pass, cred.PasswordHash) {
		return "", domain.ErrInvalidPassword
	}

	return cred.Email, nil
}

// CreateUser hashes the password and stores a new credential row keyed by
// the canonical login form.
func (b *SimpleBackend) CreateUser(ctx context.Context, username, pass string) error {
	hash, err := password.Hash(pass)
	if err != nil {
		b.logger.Error("password hashing failed", "error", err)
		return domain.ErrCreateOther
	}

	login, err := domain.CanonicalLogin(username)
	if err != nil {
		b.logger.Warn("username is not email-shaped", "username", username)
		return domain.ErrCreateOther
	}

	cred := &domain.Credential{
		Email:        strings.ToLower(username),
		LoginEmail:   login,
		PasswordHash: hash,
	}
	if err := b.credentials.Insert(ctx, cred); err != nil {
		b.logger.Error("credential insert failed", "error", err)
		return domain.ErrDatabaseFailure
	}
	return nil
}

// Routes mounts nothing; the password backend needs no extra endpoints.
func (b *SimpleBackend) Routes(g *echo.Group) {}

// OnLogout has no federated sign-out to perform.
func (b *SimpleBackend) OnLogout(email string) (string, bool) {
	return "", false
}

// DescribeClientMetadata leaves the payload untouched; the default login
// form applies.
func (b *SimpleBackend) DescribeClientMetadata(meta map[string]any) {}
