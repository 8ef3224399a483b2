package domain

import "errors"

// Authentication failure taxonomy. Backends map every library or transport
// error into one of these before returning; nothing else crosses the
// gateway boundary.
var (
	// ErrInvalidUser means the username does not exist in the backend's store.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidPassword means the user exists but the password did not verify.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidUserOrPassword is returned by backends that cannot (or must
	// not) distinguish an unknown user from a wrong password.
	ErrInvalidUserOrPassword = errors.New("invalid user or password")
	// ErrAuthnNotSupported means this backend never handles password logins.
	ErrAuthnNotSupported = errors.New("authentication method not supported")
	// ErrAuthnInternal is an infrastructure fault (database, directory or
	// provider unreachable). The only taxonomy member that maps to a 5xx.
	ErrAuthnInternal = errors.New("internal authentication error")
)

// User creation failure taxonomy.
var (
	ErrActionNotSupported = errors.New("action not supported")
	ErrDatabaseFailure    = errors.New("database failure")
	ErrNetworkFailure     = errors.New("network failure")
	ErrCreateOther        = errors.New("user creation failed")
)

// Session and lookup errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

// OpenID callback errors. Handlers translate these into 400/403 responses.
var (
	ErrCSRFViolation  = errors.New("state or nonce mismatch")
	ErrTokenRejected  = errors.New("identity token rejected")
	ErrProviderDenied = errors.New("provider returned an error response")
)

// IsCallerFault reports whether an authentication failure is attributable
// to the caller rather than to infrastructure. Caller faults collapse into
// a uniform rejection message so the response never reveals which part of
// the credential was wrong.
func IsCallerFault(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidUser),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrInvalidUserOrPassword),
		errors.Is(err, ErrAuthnNotSupported):
		return true
	}
	return false
}
