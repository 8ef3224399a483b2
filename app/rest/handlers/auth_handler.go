package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"authn-service/app/domain"
	"authn-service/app/port"
	"authn-service/app/rest/middleware"
)

// loggedOutPage is served after a local-only logout.
const loggedOutPage = `<!DOCTYPE html>
<html>
<head><title>Logged out</title></head>
<body><p>You have been logged out. <a href="/">Return to sign-in.</a></p></body>
</html>`

// AuthHandler handles login, whoami, logout and client metadata requests.
type AuthHandler struct {
	usecase  port.AuthnUsecase
	sessions port.SessionManager
	logger   *slog.Logger
}

// NewAuthHandler creates the authentication handler.
func NewAuthHandler(usecase port.AuthnUsecase, sessions port.SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		usecase:  usecase,
		sessions: sessions,
		logger:   logger,
	}
}

// LoginRequest is the POST /auth payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// WhoAmIResponse is the identity summary returned on login and whoami.
type WhoAmIResponse struct {
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	UserType domain.UserRole `json:"user_type"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func whoAmIPayload(user *domain.User) WhoAmIResponse {
	return WhoAmIResponse{
		Email:    user.Email,
		Name:     user.FullName,
		UserType: user.Role,
	}
}

// Login authenticates a username/password pair and sets the session
// cookie. Every credential problem produces the same rejection; only
// infrastructure faults surface as a 5xx.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "incorrect username or password"})
	}

	user, token, err := h.usecase.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "user does not exist"})
		case errors.Is(err, domain.ErrAuthnInternal):
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		default:
			return c.JSON(http.StatusForbidden, ErrorResponse{Error: "incorrect username or password"})
		}
	}

	c.SetCookie(h.sessions.Cookie(token))
	return c.JSON(http.StatusOK, whoAmIPayload(user))
}

// WhoAmI returns the identity summary of the current session.
func (h *AuthHandler) WhoAmI(c echo.Context) error {
	user := middleware.UserFromContext(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, whoAmIPayload(user))
}

// Logout revokes the caller's sessions. With a federated backend the
// response is a redirect to the provider's sign-out URL; otherwise a
// logged-out page. Reachable without a session so repeated logouts stay
// idempotent.
func (h *AuthHandler) Logout(c echo.Context) error {
	clear := h.sessions.ClearCookie()

	user := middleware.UserFromContext(c)
	if user == nil {
		c.SetCookie(clear)
		return c.HTML(http.StatusOK, loggedOutPage)
	}

	target, redirect := h.usecase.Logout(c.Request().Context(), user.Email)
	c.SetCookie(clear)
	if redirect {
		return c.Redirect(http.StatusSeeOther, target)
	}
	return c.HTML(http.StatusOK, loggedOutPage)
}

// Meta reports which login mechanism the client should present.
func (h *AuthHandler) Meta(c echo.Context) error {
	return c.JSON(http.StatusOK, h.usecase.ClientMetadata())
}
