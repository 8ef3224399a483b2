package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"authn-service/app/config"
	"authn-service/app/driver/directory"
	"authn-service/app/driver/oidc"
	"authn-service/app/driver/postgres"
	"authn-service/app/gateway"
	"authn-service/app/port"
	"authn-service/app/rest"
	custommw "authn-service/app/rest/middleware"
	"authn-service/app/session"
	"authn-service/app/usecase"
)

// Container wires the active credential backend, the session manager and
// the HTTP layer together. Exactly one backend is constructed per
// process, selected by configuration.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *postgres.DB
	Sessions *session.Manager
	Backend  port.AuthnBackend
	Usecase  port.AuthnUsecase

	rateLimiter *custommw.RateLimiter

	// Maintenance handle for the OpenID backend; nil for other providers.
	openidBackend *gateway.OpenIDBackend
}

// NewContainer constructs every dependency. Backend construction failures
// (unreachable database, failed OpenID discovery) are returned to the
// caller, which should treat them as fatal.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	container := &Container{
		Config: cfg,
		Logger: logger,
	}

	db, err := postgres.NewConnection(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	container.DB = db

	users := postgres.NewUserRepository(db.Pool(), logger)
	container.Sessions = session.NewManager(cfg.SessionExpiry(), cfg.InsecureMode, logger)

	switch cfg.AuthnProvider {
	case config.ProviderSimple:
		credentials := postgres.NewCredentialRepository(db.Pool(), logger)
		container.Backend = gateway.NewSimpleBackend(credentials, logger)

	case config.ProviderLDAP:
		dialer := directory.NewClient(cfg.LDAP.ServerURL, logger)
		container.Backend = gateway.NewLDAPBackend(cfg.LDAP, dialer, logger)

	case config.ProviderAAD, config.ProviderOpenID:
		backend, err := gateway.NewOpenIDBackend(
			ctx,
			cfg.OIDC,
			cfg.ServerAddress,
			oidc.NewClient(nil, logger),
			users,
			container.Sessions,
			logger,
		)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing openid backend: %w", err)
		}
		container.Backend = backend
		container.openidBackend = backend

	default:
		db.Close()
		return nil, fmt.Errorf("unknown authentication provider %q", cfg.AuthnProvider)
	}

	container.Usecase = usecase.NewAuthnUsecase(
		container.Backend, users, container.Sessions, cfg.AuthnProvider, logger)
	container.rateLimiter = custommw.NewRateLimiter()

	logger.Info("container initialized", "provider", cfg.AuthnProvider)
	return container, nil
}

// Start launches the background loops: the session expiry sweep, the
// rate-limiter cleanup and, for OpenID, the CSRF prune / key refresh
// maintenance. All stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	c.Sessions.StartSweeper(ctx)
	c.rateLimiter.StartCleanup(ctx)
	if c.openidBackend != nil {
		c.openidBackend.StartMaintenance(ctx)
	}
}

// CreateRouter creates a fully configured Echo router.
func (c *Container) CreateRouter() *echo.Echo {
	return rest.NewRouter(rest.RouterConfig{
		Logger:      c.Logger,
		Usecase:     c.Usecase,
		Sessions:    c.Sessions,
		Backend:     c.Backend,
		Provider:    c.Config.AuthnProvider,
		DB:          c.DB,
		RateLimiter: c.rateLimiter,
	})
}

// Close releases held resources.
func (c *Container) Close() error {
	if c.DB != nil {
		c.DB.Close()
	}
	c.Logger.Info("container closed")
	return nil
}
