package rest

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"authn-service/app/config"
	"authn-service/app/port"
	"authn-service/app/rest/handlers"
	custommw "authn-service/app/rest/middleware"
	"authn-service/app/utils/validator"
)

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	Logger      *slog.Logger
	Usecase     port.AuthnUsecase
	Sessions    port.SessionManager
	Backend     port.AuthnBackend
	Provider    string
	DB          handlers.Pinger
	RateLimiter *custommw.RateLimiter
}

// NewRouter creates and configures the Echo router.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	authHandler := handlers.NewAuthHandler(cfg.Usecase, cfg.Sessions, cfg.Logger)
	userHandler := handlers.NewUserHandler(cfg.Usecase, cfg.Logger)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Logger)

	sessionMW := custommw.NewSessionMiddleware(cfg.Sessions, cfg.Usecase, cfg.Logger)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(custommw.DefaultCORS())
	e.Use(custommw.SecurityHeaders())
	if cfg.RateLimiter != nil {
		e.Use(cfg.RateLimiter.RateLimit())
	}

	// Health endpoints, no auth required
	v1 := e.Group("/v1")
	v1.GET("/health", healthHandler.HealthCheck)
	v1.GET("/ready", healthHandler.ReadinessCheck)
	v1.GET("/live", healthHandler.LivenessCheck)

	api := e.Group("/api/v1")

	// Password login is not mounted for federated providers; the route
	// simply does not exist there.
	switch cfg.Provider {
	case config.ProviderSimple, config.ProviderLDAP:
		api.POST("/auth", authHandler.Login)
	}

	api.GET("/whoami", authHandler.WhoAmI, sessionMW.RequireAuth())
	api.GET("/logout", authHandler.Logout, sessionMW.OptionalAuth())
	api.GET("/meta", authHandler.Meta)
	api.POST("/users", userHandler.CreateUser, sessionMW.RequireAuth(), sessionMW.RequireAdmin())

	// Backend-specific endpoints (OpenID redirect initiation + callback)
	cfg.Backend.Routes(e.Group("/api/authn"))

	return e
}
