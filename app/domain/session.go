package domain

import "time"

// Session binds an opaque cookie token to an authenticated identity for
// the duration of a login. The session manager owns the token -> Session
// table; a Session value itself carries no secrets.
type Session struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Age returns how long ago the session was created.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// ExpiredAt reports whether the session has outlived maxAge as of now.
func (s Session) ExpiredAt(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) > maxAge
}
