package port

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"authn-service/app/domain"
)

// AuthnBackend is the capability interface every credential backend
// implements. Exactly one backend is selected at process start and stays
// active for the life of the process.
type AuthnBackend interface {
	// Authenticate verifies a username/password pair and returns the
	// externally-visible email of the authenticated identity. Failures are
	// members of the domain authentication taxonomy; nothing else escapes.
	Authenticate(ctx context.Context, username, password string) (string, error)

	// CreateUser provisions a new local credential. Backends whose accounts
	// are managed externally return domain.ErrActionNotSupported.
	CreateUser(ctx context.Context, username, password string) error

	// Routes mounts any HTTP endpoints the backend needs (the OpenID
	// backend mounts its redirect-initiation and callback endpoints here;
	// the others mount nothing).
	Routes(g *echo.Group)

	// OnLogout gives the backend a chance to perform federated single
	// sign-out. When ok is true the caller should redirect to url after
	// revoking the local session.
	OnLogout(email string) (url string, ok bool)

	// DescribeClientMetadata annotates the public capability-discovery
	// payload, e.g. with the login URL the client should use.
	DescribeClientMetadata(meta map[string]any)
}

// AuthnUsecase is the login orchestration surface consumed by the REST
// layer.
type AuthnUsecase interface {
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	WhoAmI(ctx context.Context, email string) (*domain.User, error)
	Logout(ctx context.Context, email string) (redirectURL string, redirect bool)
	CreateUser(ctx context.Context, username, password string) error
	ClientMetadata() map[string]any
}

// SessionManager owns the token -> session table and the session cookie
// shape.
type SessionManager interface {
	Issue(email string) (token string, session domain.Session, err error)
	Resolve(token string) (domain.Session, bool)
	RevokeAll(email string) int
	Cookie(token string) *http.Cookie
	ClearCookie() *http.Cookie
}
