package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"authn-service/app/domain"
	"authn-service/app/port"
	"authn-service/app/session"
)

// Context keys set by the session middleware.
const (
	ContextKeyUser      = "user"
	ContextKeyUserEmail = "user_email"
)

// SessionMiddleware resolves the session cookie to an authenticated user.
type SessionMiddleware struct {
	sessions port.SessionManager
	usecase  port.AuthnUsecase
	logger   *slog.Logger
}

// NewSessionMiddleware creates the session authentication middleware.
func NewSessionMiddleware(sessions port.SessionManager, usecase port.AuthnUsecase, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		usecase:  usecase,
		logger:   logger,
	}
}

// RequireAuth rejects requests without a resolvable session. A missing
// cookie and an unknown token produce the same response so callers cannot
// probe for valid tokens.
func (m *SessionMiddleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := m.resolve(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			user, err := m.usecase.WhoAmI(c.Request().Context(), sess.Email)
			if err != nil {
				// Session outlived the directory record (account deleted).
				m.logger.Warn("session resolves to an unknown user", "email", sess.Email)
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			c.Set(ContextKeyUser, user)
			c.Set(ContextKeyUserEmail, user.Email)
			return next(c)
		}
	}
}

// RequireAdmin additionally requires the admin role. Must run after
// RequireAuth on the same route.
func (m *SessionMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := UserFromContext(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !user.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient privileges")
			}
			return next(c)
		}
	}
}

// OptionalAuth populates the user context when a valid session is
// presented but never rejects.
func (m *SessionMiddleware) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sess, ok := m.resolve(c); ok {
				if user, err := m.usecase.WhoAmI(c.Request().Context(), sess.Email); err == nil {
					c.Set(ContextKeyUser, user)
					c.Set(ContextKeyUserEmail, user.Email)
				}
			}
			return next(c)
		}
	}
}

func (m *SessionMiddleware) resolve(c echo.Context) (domain.Session, bool) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return domain.Session{}, false
	}
	return m.sessions.Resolve(cookie.Value)
}

// UserFromContext returns the authenticated user placed by RequireAuth,
// or nil.
func UserFromContext(c echo.Context) *domain.User {
	user, _ := c.Get(ContextKeyUser).(*domain.User)
	return user
}
