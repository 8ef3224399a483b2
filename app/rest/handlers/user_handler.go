package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"authn-service/app/domain"
	"authn-service/app/port"
)

// UserHandler handles credential provisioning requests.
type UserHandler struct {
	usecase port.AuthnUsecase
	logger  *slog.Logger
}

// NewUserHandler creates the user handler.
func NewUserHandler(usecase port.AuthnUsecase, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// CreateUserRequest is the POST /users payload.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,login_name,max=254"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// CreateUser provisions a local credential. Admin-only; only the password
// backend supports it.
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if err := h.usecase.CreateUser(c.Request().Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, domain.ErrActionNotSupported):
			return c.JSON(http.StatusConflict, ErrorResponse{Error: "the active authentication backend does not support user creation"})
		case errors.Is(err, domain.ErrDatabaseFailure), errors.Is(err, domain.ErrNetworkFailure):
			h.logger.Error("credential creation failed", "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		default:
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unable to create user"})
		}
	}

	return c.JSON(http.StatusCreated, map[string]string{"status": "created"})
}
