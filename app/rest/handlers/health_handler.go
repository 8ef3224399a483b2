package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var startTime = time.Now()

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. db may be nil when the
// active backend needs no database.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger,
	}
}

// HealthResponse is the basic health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Uptime    string    `json:"uptime"`
}

// HealthCheck reports that the process is up.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "authn-service",
		Uptime:    time.Since(startTime).String(),
	})
}

// ReadinessCheck reports whether dependencies are reachable.
func (h *HealthHandler) ReadinessCheck(c echo.Context) error {
	checks := map[string]string{}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("database not reachable", "error", err)
			checks["database"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"checks": checks,
			})
		}
		checks["database"] = "connected"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
		"checks": checks,
	})
}

// LivenessCheck reports that the event loop is serving.
func (h *HealthHandler) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}
