package domain

import "time"

// CSRFSessionTTL is how long an unused login-initiation record stays valid.
const CSRFSessionTTL = 5 * time.Minute

// CSRFSession binds a federated login attempt's state/nonce pair. It is
// created when a login redirect is issued, keyed by the state token, and
// must be consumed exactly once by the matching provider callback or
// discarded by the expiry sweep.
type CSRFSession struct {
	State     string
	Nonce     string
	CreatedAt time.Time
}

// Expired reports whether the record is past its TTL as of now.
func (c CSRFSession) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) > CSRFSessionTTL
}

// Matches verifies both halves of the anti-forgery binding: the callback's
// state and the token's claimed nonce must equal the stored pair.
func (c CSRFSession) Matches(state, nonce string) bool {
	return c.State == state && c.Nonce == nonce
}
