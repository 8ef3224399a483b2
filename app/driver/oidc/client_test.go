package oidc

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authn-service/app/utils/logger"
)

func selfSignedX5C(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func newClientForTest(t *testing.T) *Client {
	t.Helper()
	l, err := logger.New("debug")
	require.NoError(t, err)
	return NewClient(nil, l)
}

func TestAzureDiscoveryURL(t *testing.T) {
	assert.Equal(t,
		"https://login.microsoftonline.com/tenant-123/.well-known/openid-configuration",
		AzureDiscoveryURL("tenant-123"))
}

func TestDiscover(t *testing.T) {
	doc := DiscoveryDocument{
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		JWKSURI:               "https://idp.example.com/keys",
		IDTokenSigningAlgs:    []string{"RS256"},
		EndSessionEndpoint:    "https://idp.example.com/logout",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	got, err := newClientForTest(t).Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, &doc, got)
}

func TestDiscover_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClientForTest(t).Discover(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestDiscover_MissingEndpointsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jwks_uri": "https://idp.example.com/keys"}`))
	}))
	defer srv.Close()

	_, err := newClientForTest(t).Discover(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required endpoints")
}

func TestFetchKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	x5c := selfSignedX5C(t, key)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{
				{"kid": "key-1", "x5c": []string{x5c}},
				{"kid": "broken", "x5c": []string{"!!not-base64!!"}},
				{"kid": "", "x5c": []string{x5c}},
			},
		})
	}))
	defer srv.Close()

	keys, err := newClientForTest(t).FetchKeys(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Len(t, keys, 1, "unusable keys are skipped")
	assert.Equal(t, key.PublicKey.N, keys["key-1"].N)
}

func TestFetchKeys_EmptySetFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys": []}`))
	}))
	defer srv.Close()

	_, err := newClientForTest(t).FetchKeys(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no acceptable keys")
}
