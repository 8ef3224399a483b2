package usecase

import (
	"context"
	"errors"
	"log/slog"

	"authn-service/app/config"
	"authn-service/app/domain"
	"authn-service/app/port"
)

// AuthnUsecase glues the active credential backend, the user directory
// and the session manager together. Implements port.AuthnUsecase.
type AuthnUsecase struct {
	backend  port.AuthnBackend
	users    port.UserRepository
	sessions port.SessionManager
	provider string
	logger   *slog.Logger
}

// NewAuthnUsecase creates the login orchestration layer.
func NewAuthnUsecase(
	backend port.AuthnBackend,
	users port.UserRepository,
	sessions port.SessionManager,
	provider string,
	logger *slog.Logger,
) *AuthnUsecase {
	return &AuthnUsecase{
		backend:  backend,
		users:    users,
		sessions: sessions,
		provider: provider,
		logger:   logger.With("component", "authn_usecase"),
	}
}

// Login authenticates the credentials against the active backend,
// confirms the resulting identity is a recognized user and mints a
// session. Every caller-fault failure collapses into the same rejection
// so the response never reveals whether the username exists or which
// part of the credential was wrong.
func (uc *AuthnUsecase) Login(ctx context.Context, username, pass string) (*domain.User, string, error) {
	email, err := uc.backend.Authenticate(ctx, username, pass)
	if err != nil {
		if domain.IsCallerFault(err) {
			uc.logger.Info("login rejected", "reason", err)
			return nil, "", domain.ErrInvalidUserOrPassword
		}
		uc.logger.Error("authentication backend failure", "error", err)
		return nil, "", domain.ErrAuthnInternal
	}

	user, err := uc.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// The backend vouched for the identity but the application has
			// no record of it.
			uc.logger.Warn("authenticated identity is not a recognized user", "email", email)
			return nil, "", domain.ErrUserNotFound
		}
		uc.logger.Error("user directory lookup failed", "error", err)
		return nil, "", domain.ErrAuthnInternal
	}

	token, _, err := uc.sessions.Issue(user.Email)
	if err != nil {
		uc.logger.Error("session issuance failed", "error", err)
		return nil, "", domain.ErrAuthnInternal
	}

	uc.logger.Info("login succeeded", "email", user.Email, "role", user.Role)
	return user, token, nil
}

// WhoAmI resolves a session identity to its directory record.
func (uc *AuthnUsecase) WhoAmI(ctx context.Context, email string) (*domain.User, error) {
	return uc.users.FindByEmail(ctx, email)
}

// Logout revokes every session held by the email across all devices,
// then gives the backend exactly one chance to supply a federated
// sign-out redirect.
func (uc *AuthnUsecase) Logout(ctx context.Context, email string) (string, bool) {
	revoked := uc.sessions.RevokeAll(email)
	uc.logger.Info("sessions revoked", "email", email, "count", revoked)
	return uc.backend.OnLogout(email)
}

// CreateUser provisions a credential through the active backend. Only the
// password backend supports this.
func (uc *AuthnUsecase) CreateUser(ctx context.Context, username, pass string) error {
	return uc.backend.CreateUser(ctx, username, pass)
}

// ClientMetadata reports which login mechanism the client should present.
// The aad provider is reported as openid since the client-side flow is
// identical.
func (uc *AuthnUsecase) ClientMetadata() map[string]any {
	provider := uc.provider
	if provider == config.ProviderAAD {
		provider = config.ProviderOpenID
	}
	meta := map[string]any{"auth": provider}
	uc.backend.DescribeClientMetadata(meta)
	return meta
}
