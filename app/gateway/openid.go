package gateway

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"authn-service/app/config"
	"authn-service/app/domain"
	"authn-service/app/driver/oidc"
	"authn-service/app/port"
	"authn-service/app/utils/random"
)

const (
	// maintenanceInterval is the cadence of the background loop that
	// prunes stale CSRF sessions.
	maintenanceInterval = 30 * time.Second
	// keyRefreshTicks is how many maintenance iterations pass between
	// JWKS re-fetches (~30 minutes).
	keyRefreshTicks = 60
	// clockSkew is the leeway applied to token time claims.
	clockSkew = 60 * time.Second

	// CallbackPath is where the provider posts the identity token back,
	// relative to the externally reachable server address.
	CallbackPath = "/api/authn/openid"
)

// errNoKeyID signals that a token header carries no kid, so verification
// should fall back to trying every cached key.
var errNoKeyID = errors.New("token header has no key id")

// OpenIDBackend implements federated login against an OpenID Connect
// provider (Azure AD or any other discovery-compliant IdP) using the
// implicit flow. It never sees a password; the provider posts a signed
// identity token to the callback endpoint instead.
type OpenIDBackend struct {
	provider *oidc.Client
	users    port.UserRepository
	sessions port.SessionManager

	authorizeEndpoint  string
	endSessionEndpoint string
	jwksURI            string
	clientID           string
	redirectURI        string
	parser             *jwt.Parser

	// Three independent locks: the maintenance loop and request handlers
	// touch each map at different cadences, and holding at most one lock
	// at a time rules out cross-structure deadlock.
	keysMu sync.RWMutex
	keys   map[string]*rsa.PublicKey

	csrfMu sync.RWMutex
	csrf   map[string]domain.CSRFSession

	logoutMu     sync.RWMutex
	logoutTokens map[string]string

	logger *slog.Logger
}

// NewOpenIDBackend performs provider discovery, fetches the signing keys
// and builds the token validation policy. Every failure here is an
// unrecoverable configuration problem: the caller should treat an error
// as fatal, since the service cannot validate tokens without key
// material.
func NewOpenIDBackend(
	ctx context.Context,
	cfg config.OpenIDConfig,
	serverAddress string,
	provider *oidc.Client,
	users port.UserRepository,
	sessions port.SessionManager,
	logger *slog.Logger,
) (*OpenIDBackend, error) {
	log := logger.With("backend", "openid")

	discoveryURL := cfg.DiscoveryURL
	if discoveryURL == "" {
		discoveryURL = oidc.AzureDiscoveryURL(cfg.Tenant)
	}

	log.Info("performing OpenID Connect discovery", "url", discoveryURL)
	doc, err := provider.Discover(ctx, discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("openid discovery: %w", err)
	}

	log.Info("fetching JSON Web Key Set", "url", doc.JWKSURI)
	keys, err := provider.FetchKeys(ctx, doc.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("fetching signing keys: %w", err)
	}

	algs := filterSigningAlgs(doc.IDTokenSigningAlgs, log)
	if len(algs) == 0 {
		return nil, fmt.Errorf("provider advertises no acceptable signing algorithms")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	return &OpenIDBackend{
		provider:           provider,
		users:              users,
		sessions:           sessions,
		authorizeEndpoint:  doc.AuthorizationEndpoint,
		endSessionEndpoint: doc.EndSessionEndpoint,
		jwksURI:            doc.JWKSURI,
		clientID:           cfg.ClientID,
		redirectURI:        serverAddress + CallbackPath,
		parser:             jwt.NewParser(opts...),
		keys:               keys,
		csrf:               make(map[string]domain.CSRFSession),
		logoutTokens:       make(map[string]string),
		logger:             log,
	}, nil
}

// filterSigningAlgs keeps only the asymmetric algorithms this service
// accepts. Symmetric (HMAC) and "none" entries would let a party without
// the provider's private key forge tokens, so they are dropped and
// logged.
func filterSigningAlgs(advertised []string, logger *slog.Logger) []string {
	var algs []string
	for _, alg := range advertised {
		switch alg {
		case "RS256", "RS384", "RS512":
			algs = append(algs, alg)
		case "none":
			logger.Warn("provider advertises the 'none' signing algorithm, ignoring")
		default:
			if len(alg) >= 2 && alg[:2] == "HS" {
				logger.Warn("provider advertises HMAC signing, not supported", "alg", alg)
			} else {
				logger.Warn("unknown signing algorithm, ignoring", "alg", alg)
			}
		}
	}
	return algs
}

// Authenticate always rejects: the federated flow never handles a
// password directly.
func (b *OpenIDBackend) Authenticate(ctx context.Context, username, password string) (string, error) {
	return "", domain.ErrAuthnNotSupported
}

// CreateUser is unsupported; provider accounts are managed externally.
func (b *OpenIDBackend) CreateUser(ctx context.Context, username, password string) error {
	return domain.ErrActionNotSupported
}

// Routes mounts the redirect-initiation and provider-callback endpoints.
func (b *OpenIDBackend) Routes(g *echo.Group) {
	g.GET("/openid", b.beginLogin)
	g.POST("/openid", b.finishLogin)
}

// OnLogout pops the stored identity token for the email and returns the
// provider's end-session URL with an id_token_hint, enabling single
// sign-out. Without an advertised end-session endpoint the logout stays
// local.
func (b *OpenIDBackend) OnLogout(email string) (string, bool) {
	b.logoutMu.Lock()
	token, ok := b.logoutTokens[email]
	if ok {
		delete(b.logoutTokens, email)
	}
	b.logoutMu.Unlock()

	if b.endSessionEndpoint == "" {
		return "", false
	}
	if !ok {
		return b.endSessionEndpoint, true
	}
	return b.endSessionEndpoint + "?id_token_hint=" + url.QueryEscape(token), true
}

// DescribeClientMetadata advertises the redirect-initiation URL so the
// client presents a federated sign-in button instead of a password form.
func (b *OpenIDBackend) DescribeClientMetadata(meta map[string]any) {
	meta["openid_url"] = CallbackPath
}

// StartMaintenance launches the background loop that prunes stale CSRF
// sessions every 30 seconds and refreshes the signing keys roughly every
// 30 minutes. It runs until ctx is cancelled.
func (b *OpenIDBackend) StartMaintenance(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()

		tick := 0
		for {
			select {
			case <-ctx.Done():
				b.logger.Info("openid maintenance loop stopped")
				return
			case <-ticker.C:
				if removed := b.PruneCSRF(time.Now()); removed > 0 {
					b.logger.Debug("pruned stale login attempts", "count", removed)
				}
				tick++
				if tick%keyRefreshTicks == 0 {
					if err := b.RefreshKeys(ctx); err != nil {
						// Stale-but-valid keys beat no keys; keep the old set.
						b.logger.Warn("signing key refresh failed, keeping previous set", "error", err)
					}
				}
			}
		}
	}()
}

// PruneCSRF removes login attempts older than the CSRF TTL. Expired keys
// are collected under the read lock and removed in one batched write so
// the write lock is held as briefly as possible.
func (b *OpenIDBackend) PruneCSRF(now time.Time) int {
	var stale []string
	b.csrfMu.RLock()
	for state, sess := range b.csrf {
		if sess.Expired(now) {
			stale = append(stale, state)
		}
	}
	b.csrfMu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	b.csrfMu.Lock()
	removed := 0
	for _, state := range stale {
		if sess, ok := b.csrf[state]; ok && sess.Expired(now) {
			delete(b.csrf, state)
			removed++
		}
	}
	b.csrfMu.Unlock()
	return removed
}

// RefreshKeys re-fetches the JWKS and replaces the whole key cache in one
// write, so readers never observe a half-updated set.
func (b *OpenIDBackend) RefreshKeys(ctx context.Context) error {
	keys, err := b.provider.FetchKeys(ctx, b.jwksURI)
	if err != nil {
		return err
	}

	b.keysMu.Lock()
	b.keys = keys
	b.keysMu.Unlock()

	b.logger.Info("signing keys refreshed", "count", len(keys))
	return nil
}

// beginLogin issues a fresh CSRF session and redirects the caller to the
// provider's authorization endpoint. The body carries a clickable link
// for clients that do not follow redirects automatically.
func (b *OpenIDBackend) beginLogin(c echo.Context) error {
	state, err := random.Token(random.TokenLength)
	if err != nil {
		b.logger.Error("token generation failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	nonce, err := random.Token(random.TokenLength)
	if err != nil {
		b.logger.Error("token generation failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	b.csrfMu.Lock()
	b.csrf[state] = domain.CSRFSession{
		State:     state,
		Nonce:     nonce,
		CreatedAt: time.Now(),
	}
	b.csrfMu.Unlock()

	query := url.Values{}
	query.Set("scope", "openid")
	query.Set("response_type", "id_token")
	query.Set("response_mode", "form_post")
	query.Set("redirect_uri", b.redirectURI)
	query.Set("state", state)
	query.Set("nonce", nonce)
	if b.clientID != "" {
		query.Set("client_id", b.clientID)
	}
	authURL := b.authorizeEndpoint + "?" + query.Encode()

	c.Response().Header().Set(echo.HeaderLocation, authURL)
	return c.HTML(http.StatusSeeOther,
		fmt.Sprintf(`<a href=%q>Continue to sign-in</a>`, authURL))
}

// finishLogin receives the provider's form_post response, consumes the
// matching CSRF session exactly once, verifies the identity token against
// the validation policy, confirms the subject is a recognized user and
// mints an application session.
func (b *OpenIDBackend) finishLogin(c echo.Context) error {
	if provErr := c.FormValue("error"); provErr != "" {
		desc := c.FormValue("error_description")
		b.logger.Warn("provider returned an error response", "error", provErr, "description", desc)
		if desc == "" {
			desc = provErr
		}
		return echo.NewHTTPError(http.StatusForbidden, desc)
	}

	rawToken := c.FormValue("id_token")
	state := c.FormValue("state")
	if rawToken == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed provider response")
	}

	csrf, ok := b.consumeCSRF(state)
	if !ok {
		b.logger.Warn("callback with unknown or expired state")
		return echo.NewHTTPError(http.StatusBadRequest, domain.ErrCSRFViolation.Error())
	}

	claims, err := b.verifyToken(rawToken)
	if err != nil {
		b.logger.Warn("identity token rejected", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, domain.ErrTokenRejected.Error())
	}

	nonce, _ := claims["nonce"].(string)
	if !csrf.Matches(state, nonce) {
		b.logger.Warn("nonce mismatch on callback")
		return echo.NewHTTPError(http.StatusBadRequest, domain.ErrCSRFViolation.Error())
	}

	email := claimedEmail(claims)
	if email == "" {
		b.logger.Warn("identity token carries no usable email claim")
		return echo.NewHTTPError(http.StatusBadRequest, domain.ErrTokenRejected.Error())
	}

	user, err := b.users.FindByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			b.logger.Warn("federated identity is not a recognized user", "email", email)
			return echo.NewHTTPError(http.StatusForbidden, "not a recognized user")
		}
		b.logger.Error("user directory lookup failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	b.logoutMu.Lock()
	b.logoutTokens[user.Email] = rawToken
	b.logoutMu.Unlock()

	token, _, err := b.sessions.Issue(user.Email)
	if err != nil {
		b.logger.Error("session issuance failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	c.SetCookie(b.sessions.Cookie(token))

	return c.Redirect(http.StatusSeeOther, "/")
}

// consumeCSRF atomically removes the CSRF session for state. Removal
// under the write lock guarantees no two concurrent callbacks can both
// consume the same state token.
func (b *OpenIDBackend) consumeCSRF(state string) (domain.CSRFSession, bool) {
	b.csrfMu.Lock()
	sess, ok := b.csrf[state]
	if ok {
		delete(b.csrf, state)
	}
	b.csrfMu.Unlock()

	if !ok || sess.Expired(time.Now()) {
		return domain.CSRFSession{}, false
	}
	return sess, true
}

// verifyToken validates the raw identity token against the policy. When
// the header names a key id only that key is tried; without one every
// cached key is attempted, a compatibility concession to providers that
// omit kid.
func (b *OpenIDBackend) verifyToken(raw string) (jwt.MapClaims, error) {
	b.keysMu.RLock()
	keys := make(map[string]*rsa.PublicKey, len(b.keys))
	for kid, key := range b.keys {
		keys[kid] = key
	}
	b.keysMu.RUnlock()

	claims := jwt.MapClaims{}
	_, err := b.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errNoKeyID
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("no cached key with id %q", kid)
		}
		return key, nil
	})
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, errNoKeyID) {
		return nil, err
	}
	b.logger.Warn("identity token has no key id, trying every cached key")

	for _, key := range keys {
		claims := jwt.MapClaims{}
		if _, err := b.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err == nil {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("no cached key verifies the token")
}

// claimedEmail extracts the subject's email from the token claims. Azure
// AD places it in preferred_username or upn depending on account type.
func claimedEmail(claims jwt.MapClaims) string {
	for _, claim := range []string{"email", "preferred_username", "upn"} {
		if v, ok := claims[claim].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
