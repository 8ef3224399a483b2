package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TokenLength is the length used for session, state and nonce tokens.
const TokenLength = 32

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Token returns a cryptographically random string of n characters drawn
// uniformly from a 62-character alphabet. Used for session keys and the
// OpenID state/nonce pair; both must be non-enumerable.
func Token(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading system entropy: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// MustToken is Token for call sites where entropy exhaustion is not a
// recoverable condition (crypto/rand blocking is treated as fatal there).
func MustToken(n int) string {
	t, err := Token(n)
	if err != nil {
		panic(err)
	}
	return t
}
