package oidc

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// requestTimeout bounds every round-trip to the identity provider.
const requestTimeout = 10 * time.Second

// DiscoveryDocument is the subset of the provider's OpenID Connect
// discovery metadata this service consumes.
type DiscoveryDocument struct {
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	IDTokenSigningAlgs    []string `json:"id_token_signing_alg_values_supported"`
	EndSessionEndpoint    string   `json:"end_session_endpoint"`
}

// jwkSet is a JSON Web Key Set as published at the provider's jwks_uri.
// Only the fields this application needs are extracted.
type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	// Key ID - see RFC 7517 section 4.5
	KID string `json:"kid"`
	// X.509 certificate chain - see RFC 7517 section 4.7
	X5C []string `json:"x5c"`
}

// AzureDiscoveryURL formats the well-known Azure AD discovery document URL
// for a tenant.
func AzureDiscoveryURL(tenant string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/.well-known/openid-configuration", tenant)
}

// Client fetches discovery metadata and signing keys from an OpenID
// Connect provider. The HTTP client is injected once at startup rather
// than referenced as a process-wide ambient value.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a provider client. Pass nil to use a client with the
// default bounded timeout.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		http:   httpClient,
		logger: logger.With("component", "oidc_client"),
	}
}

// Discover fetches and parses the provider's discovery document. Any
// non-200 response or parse failure is an error; at startup callers treat
// it as fatal.
func (c *Client) Discover(ctx context.Context, discoveryURL string) (*DiscoveryDocument, error) {
	c.logger.Info("attempting OpenID Connect discovery", "url", discoveryURL)

	var doc DiscoveryDocument
	if err := c.getJSON(ctx, discoveryURL, &doc); err != nil {
		return nil, fmt.Errorf("fetching OpenID metadata: %w", err)
	}

	if doc.AuthorizationEndpoint == "" || doc.JWKSURI == "" {
		return nil, fmt.Errorf("OpenID metadata missing required endpoints")
	}
	return &doc, nil
}

// FetchKeys fetches the provider's JSON Web Key Set and returns the RSA
// public keys indexed by key ID. Keys without usable certificate material
// are skipped with a warning; an empty result is an error.
func (c *Client) FetchKeys(ctx context.Context, jwksURI string) (map[string]*rsa.PublicKey, error) {
	c.logger.Info("fetching JSON Web Key Set", "url", jwksURI)

	var set jwkSet
	if err := c.getJSON(ctx, jwksURI, &set); err != nil {
		return nil, fmt.Errorf("fetching JSON Web Key Set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		pub, err := parseJWK(k)
		if err != nil {
			c.logger.Warn("skipping unusable JSON Web Key", "kid", k.KID, "error", err)
			continue
		}
		keys[k.KID] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no acceptable keys in the JSON Web Key Set")
	}
	return keys, nil
}

func parseJWK(k jwk) (*rsa.PublicKey, error) {
	if k.KID == "" {
		return nil, fmt.Errorf("key has no kid")
	}
	if len(k.X5C) == 0 {
		return nil, fmt.Errorf("key has no x5c certificate chain")
	}

	// The leaf certificate carries the signing key.
	der, err := base64.StdEncoding.DecodeString(k.X5C[0])
	if err != nil {
		return nil, fmt.Errorf("decoding x5c entry: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing x5c certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate does not hold an RSA public key")
	}
	return pub, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned HTTP %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	return json.NewDecoder(res.Body).Decode(dst)
}
