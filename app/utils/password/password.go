package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt work factors tuned for sub-second interactive verification.
const (
	logN    = 15 // N = 2^15
	r       = 8
	p       = 1
	saltLen = 16
	keyLen  = 32
)

// Hash derives an scrypt hash of the password and encodes it together with
// its parameters and salt as
//
//	$scrypt$ln=15,r=8,p=1$<base64 salt>$<base64 key>
//
// so stored hashes remain verifiable if the work factors are retuned later.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	dk, err := scrypt.Key([]byte(password), salt, 1<<logN, r, p, keyLen)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	return fmt.Sprintf("$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		logN, r, p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk)), nil
}

// Verify reports whether password matches the encoded hash. Malformed
// hashes verify as false rather than erroring; callers treat both the
// same way.
func Verify(password, encoded string) bool {
	hashLogN, hashR, hashP, salt, want, err := decode(encoded)
	if err != nil {
		return false
	}

	got, err := scrypt.Key([]byte(password), salt, 1<<hashLogN, hashR, hashP, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decode(encoded string) (logN, r, p int, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed scrypt hash")
	}

	for _, kv := range strings.Split(parts[2], ",") {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			return 0, 0, 0, nil, nil, fmt.Errorf("malformed scrypt parameters")
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, 0, nil, nil, fmt.Errorf("malformed scrypt parameter %q", kv)
		}
		switch k {
		case "ln":
			logN = n
		case "r":
			r = n
		case "p":
			p = n
		default:
			return 0, 0, 0, nil, nil, fmt.Errorf("unknown scrypt parameter %q", k)
		}
	}
	if logN <= 0 || logN > 31 || r <= 0 || p <= 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("scrypt parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed key")
	}
	return logN, r, p, salt, key, nil
}
