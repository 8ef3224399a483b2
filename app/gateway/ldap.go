package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"authn-service/app/config"
	"authn-service/app/domain"
	"authn-service/app/driver/directory"
	"authn-service/app/port"
)

// validUsername restricts directory logins to the characters that can
// never alter filter or DN structure. Anything else is rejected before it
// reaches the directory at all.
var validUsername = regexp.MustCompile(`^[\w.@]+$`)

// LDAPBackend authenticates by binding against an LDAP or Active
// Directory server with the caller's own credentials, then searching for
// the caller's directory record to resolve their email.
type LDAPBackend struct {
	dialer          directory.Dialer
	searchBase      string
	filterField     string
	emailField      string
	domain          string
	activeDirectory bool
	normalizeLogins bool
	logger          *slog.Logger
}

// NewLDAPBackend creates the directory backend from configuration.
func NewLDAPBackend(cfg config.LDAPConfig, dialer directory.Dialer, logger *slog.Logger) port.AuthnBackend {
	return &LDAPBackend{
		dialer:          dialer,
		searchBase:      cfg.SearchBase,
		filterField:     cfg.FilterField,
		emailField:      cfg.EmailField,
		domain:          cfg.Domain,
		activeDirectory: cfg.ActiveDirectory,
		normalizeLogins: cfg.NormalizeLogins,
		logger:          logger.With("backend", "ldap"),
	}
}

// Authenticate binds as the caller and searches for their directory
// record. Any bind failure collapses to a single indistinguishable
// rejection; a successful bind with no matching record is an
// infrastructure fault, not a credentials problem.
func (b *LDAPBackend) Authenticate(ctx context.Context, username, password string) (string, error) {
	if !validUsername.MatchString(username) {
		return "", domain.ErrInvalidUserOrPassword
	}
	if password == "" {
		// An empty password would perform an unauthenticated bind, which
		// most directories report as success.
		return "", domain.ErrInvalidUserOrPassword
	}

	bindName := username
	if b.normalizeLogins {
		normalized, err := domain.CanonicalLogin(username)
		if err != nil {
			return "", domain.ErrInvalidUserOrPassword
		}
		bindName = normalized
	}
	uid := bindName

	if b.activeDirectory && b.domain != "" {
		// AD simple binds expect down-level logon names, so any @realm
		// suffix is stripped before prefixing the NetBIOS domain.
		if local, _, found := strings.Cut(bindName, "@"); found {
			bindName = local
			uid = local
		}
		bindName = b.domain + `\` + bindName
	}

	conn, err := b.dialer.Dial(ctx)
	if err != nil {
		return "", domain.ErrAuthnInternal
	}
	defer conn.Close()

	if err := conn.Bind(bindName, password); err != nil {
		return "", domain.ErrInvalidUserOrPassword
	}

	filter := fmt.Sprintf("(%s=%s)", b.filterField, directory.Escape(uid))
	entries, err := conn.Search(b.searchBase, filter, []string{b.emailField})
	if err != nil {
		b.logger.Warn("directory search failed", "error", err)
		return "", domain.ErrAuthnInternal
	}

	if len(entries) == 0 {
		b.logger.Error("bind succeeded but directory returned no record", "username", uid)
		return "", domain.ErrAuthnInternal
	}
	if len(entries) > 1 {
		b.logger.Warn("directory returned multiple entries, using first", "username", uid)
	}

	emails := entries[0].Attributes[b.emailField]
	if len(emails) == 0 {
		b.logger.Error("directory record has no mail attribute", "dn", entries[0].DN)
		return "", domain.ErrAuthnInternal
	}
	return emails[0], nil
}

// CreateUser is unsupported; directory accounts are provisioned
// externally.
func (b *LDAPBackend) CreateUser(ctx context.Context, username, password string) error {
	return domain.ErrActionNotSupported
}

// Routes mounts nothing.
func (b *LDAPBackend) Routes(g *echo.Group) {}

// OnLogout has no federated sign-out to perform.
func (b *LDAPBackend) OnLogout(email string) (string, bool) {
	return "", false
}

// DescribeClientMetadata leaves the payload untouched.
func (b *LDAPBackend) DescribeClientMetadata(meta map[string]any) {}
