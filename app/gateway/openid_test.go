package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authn-service/app/config"
	"authn-service/app/domain"
	"authn-service/app/driver/oidc"
	"authn-service/app/port"
	"authn-service/app/session"
	"authn-service/app/utils/logger"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

type openIDFixture struct {
	backend  *OpenIDBackend
	sessions *session.Manager
	signKey  *rsa.PrivateKey
	clientID string
	echo     *echo.Echo
}

// newOpenIDFixture stands up fake discovery and JWKS endpoints, builds a
// backend against them and mounts its routes on a fresh echo instance.
func newOpenIDFixture(t *testing.T) *openIDFixture {
	t.Helper()

	signKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &signKey.PublicKey, signKey)
	require.NoError(t, err)
	x5c := base64.StdEncoding.EncodeToString(der)

	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{"kid": "key-1", "x5c": []string{x5c}}},
		})
	}))
	t.Cleanup(jwksSrv.Close)

	discoverySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint":                "https://idp.example.com/authorize",
			"jwks_uri":                              jwksSrv.URL,
			"id_token_signing_alg_values_supported": []string{"RS256", "HS256", "none"},
			"end_session_endpoint":                  "https://idp.example.com/logout",
		})
	}))
	t.Cleanup(discoverySrv.Close)

	log, err := logger.New("error")
	require.NoError(t, err)

	sessions := session.NewManager(2*time.Hour, true, log)
	users := &fakeUserRepo{users: map[string]*domain.User{
		"j.doe@example.com": {Email: "j.doe@example.com", FullName: "J. Doe", Role: domain.UserRoleStudent},
	}}

	backend, err := NewOpenIDBackend(
		context.Background(),
		config.OpenIDConfig{DiscoveryURL: discoverySrv.URL, ClientID: "client-123"},
		"http://localhost:9500",
		oidc.NewClient(nil, log),
		users,
		sessions,
		log,
	)
	require.NoError(t, err)

	e := echo.New()
	backend.Routes(e.Group("/api/authn"))

	return &openIDFixture{
		backend:  backend,
		sessions: sessions,
		signKey:  signKey,
		clientID: "client-123",
		echo:     e,
	}
}

// beginLogin drives the redirect-initiation endpoint and returns the
// state and nonce bound to the new login attempt.
func (f *openIDFixture) beginLogin(t *testing.T) (state, nonce string) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/authn/openid", nil)
	f.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)

	q := loc.Query()
	return q.Get("state"), q.Get("nonce")
}

// callback posts a provider response to the callback endpoint.
func (f *openIDFixture) callback(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/authn/openid", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *openIDFixture) signToken(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(f.signKey)
	require.NoError(t, err)
	return signed
}

func (f *openIDFixture) validClaims(nonce, email string) jwt.MapClaims {
	return jwt.MapClaims{
		"aud":   f.clientID,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"nonce": nonce,
		"email": email,
	}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestOpenIDBeginLogin(t *testing.T) {
	f := newOpenIDFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/authn/openid", nil)
	f.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)

	q := loc.Query()
	assert.Equal(t, "openid", q.Get("scope"))
	assert.Equal(t, "id_token", q.Get("response_type"))
	assert.Equal(t, "form_post", q.Get("response_mode"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:9500/api/authn/openid", q.Get("redirect_uri"))
	assert.Len(t, q.Get("state"), 32)
	assert.Len(t, q.Get("nonce"), 32)
	assert.NotEqual(t, q.Get("state"), q.Get("nonce"))

	assert.Contains(t, rec.Body.String(), "href")
}

func TestOpenIDCallback_Success(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	token := f.signToken(t, "key-1", f.validClaims(nonce, "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "a session cookie must be set")

	sess, ok := f.sessions.Resolve(cookie.Value)
	require.True(t, ok)
	assert.Equal(t, "j.doe@example.com", sess.Email)
}

func TestOpenIDCallback_StateConsumedExactlyOnce(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)
	token := f.signToken(t, "key-1", f.validClaims(nonce, "j.doe@example.com"))
	form := url.Values{"id_token": {token}, "state": {state}}

	first := f.callback(t, form)
	require.Equal(t, http.StatusSeeOther, first.Code)

	second := f.callback(t, form)
	assert.Equal(t, http.StatusBadRequest, second.Code, "a state token is never honored twice")
	assert.Nil(t, sessionCookie(second))
}

func TestOpenIDCallback_NonceMismatchRejected(t *testing.T) {
	f := newOpenIDFixture(t)
	state, _ := f.beginLogin(t)

	token := f.signToken(t, "key-1", f.validClaims("attacker-chosen-nonce", "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, sessionCookie(rec), "no session may be created on a CSRF violation")
}

func TestOpenIDCallback_UnknownStateRejected(t *testing.T) {
	f := newOpenIDFixture(t)
	_, nonce := f.beginLogin(t)

	token := f.signToken(t, "key-1", f.validClaims(nonce, "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {"never-issued"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenIDCallback_HMACTokenRejected(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	// Signed with a symmetric key; the algorithm allow-list must reject it
	// before any signature check matters.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, f.validClaims(nonce, "j.doe@example.com"))
	tok.Header["kid"] = "key-1"
	signed, err := tok.SignedString([]byte("guessable-shared-secret"))
	require.NoError(t, err)

	rec := f.callback(t, url.Values{"id_token": {signed}, "state": {state}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenIDCallback_ExpiredTokenRejected(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	claims := f.validClaims(nonce, "j.doe@example.com")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := f.signToken(t, "key-1", claims)

	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenIDCallback_WrongAudienceRejected(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	claims := f.validClaims(nonce, "j.doe@example.com")
	claims["aud"] = "some-other-application"
	token := f.signToken(t, "key-1", claims)

	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenIDCallback_MissingKIDTriesAllKeys(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	token := f.signToken(t, "", f.validClaims(nonce, "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestOpenIDCallback_UnknownUserForbidden(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	token := f.signToken(t, "key-1", f.validClaims(nonce, "stranger@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

func TestOpenIDCallback_ProviderErrorSurfaced(t *testing.T) {
	f := newOpenIDFixture(t)

	rec := f.callback(t, url.Values{
		"error":             {"consent_required"},
		"error_description": {"AADSTS65001: user or administrator has not consented"},
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "AADSTS65001")
}

func TestOpenIDPruneCSRF(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)

	removed := f.backend.PruneCSRF(time.Now().Add(domain.CSRFSessionTTL + time.Second))
	assert.Equal(t, 1, removed)

	token := f.signToken(t, "key-1", f.validClaims(nonce, "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a pruned login attempt is gone")
}

func TestOpenIDOnLogout(t *testing.T) {
	f := newOpenIDFixture(t)
	state, nonce := f.beginLogin(t)
	token := f.signToken(t, "key-1", f.validClaims(nonce, "j.doe@example.com"))
	rec := f.callback(t, url.Values{"id_token": {token}, "state": {state}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	target, ok := f.backend.OnLogout("j.doe@example.com")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(target, "https://idp.example.com/logout?id_token_hint="))
	assert.Contains(t, target, url.QueryEscape(token))

	// The hint token is consumed on first use.
	target, ok = f.backend.OnLogout("j.doe@example.com")
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com/logout", target)
}

func TestOpenIDPasswordFlowsUnsupported(t *testing.T) {
	f := newOpenIDFixture(t)
	ctx := context.Background()

	_, err := f.backend.Authenticate(ctx, "j.doe@example.com", "pw")
	assert.ErrorIs(t, err, domain.ErrAuthnNotSupported)

	err = f.backend.CreateUser(ctx, "new@example.com", "pw")
	assert.ErrorIs(t, err, domain.ErrActionNotSupported)
}

func TestOpenIDClientMetadata(t *testing.T) {
	f := newOpenIDFixture(t)

	meta := map[string]any{}
	f.backend.DescribeClientMetadata(meta)
	assert.Equal(t, CallbackPath, meta["openid_url"])
}

var _ port.AuthnBackend = (*OpenIDBackend)(nil)
