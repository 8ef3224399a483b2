package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"authn-service/app/domain"
	"authn-service/app/utils/random"
)

// CookieName is the opaque session cookie presented on every request.
const CookieName = "session"

const sweepInterval = 60 * time.Second

// Manager owns the token -> session table shared across request-handling
// goroutines. Reads proceed concurrently; inserts, revocations and the
// sweep take the write lock. Implements port.SessionManager.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session

	maxAge   time.Duration
	insecure bool
	logger   *slog.Logger
}

// NewManager builds a manager without starting its sweep loop, so tests
// and callers control background work explicitly via StartSweeper.
func NewManager(maxAge time.Duration, insecure bool, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]domain.Session),
		maxAge:   maxAge,
		insecure: insecure,
		logger:   logger.With("component", "session_manager"),
	}
}

// Issue creates a session for email under a fresh unguessable token.
func (m *Manager) Issue(email string) (string, domain.Session, error) {
	sess := domain.Session{
		Email:     email,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := random.Token(random.TokenLength)
	if err != nil {
		return "", domain.Session{}, err
	}
	// Collisions over a 62^32 space are not expected; the check keeps the
	// uniqueness-at-issuance invariant explicit.
	for {
		if _, exists := m.sessions[token]; !exists {
			break
		}
		if token, err = random.Token(random.TokenLength); err != nil {
			return "", domain.Session{}, err
		}
	}

	m.sessions[token] = sess
	return token, sess, nil
}

// Resolve looks up the session for a presented token. All failure modes
// (empty token, unknown token) look identical to the caller so resolution
// cannot be used as a token-guessing oracle.
func (m *Manager) Resolve(token string) (domain.Session, bool) {
	if token == "" {
		return domain.Session{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, found := m.sessions[token]
	return sess, found
}

// RevokeAll removes every session belonging to email (a user may hold
// concurrent sessions across devices) and returns how many were removed.
// Removal is visible to Resolve as soon as RevokeAll returns.
func (m *Manager) RevokeAll(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, sess := range m.sessions {
		if sess.Email == email {
			delete(m.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("revoked sessions", "email", email, "count", removed)
	}
	return removed
}

// StartSweeper runs the expiry sweep every minute until ctx is cancelled.
// Expiry is garbage collection, not logout: it never triggers federated
// sign-out.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("session sweeper stopped")
				return
			case <-ticker.C:
				m.Sweep(time.Now())
			}
		}
	}()
}

// Sweep removes sessions older than the configured max-age. Expired tokens
// are collected under the read lock first so the write lock is held only
// for the batched removal.
func (m *Manager) Sweep(now time.Time) int {
	var expired []string

	m.mu.RLock()
	for token, sess := range m.sessions {
		if sess.ExpiredAt(now, m.maxAge) {
			expired = append(expired, token)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	m.mu.Lock()
	for _, token := range expired {
		delete(m.sessions, token)
	}
	m.mu.Unlock()

	m.logger.Info("purged expired sessions", "count", len(expired))
	return len(expired)
}

// Cookie builds the HTTP-only session cookie for a newly issued token.
// The Secure attribute is dropped only in insecure (local development)
// mode.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !m.insecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds an expired cookie that removes the session cookie
// client-side.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !m.insecure,
		SameSite: http.SameSiteLaxMode,
	}
}
