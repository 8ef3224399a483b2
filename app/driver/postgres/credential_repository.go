package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"authn-service/app/domain"
	"authn-service/app/port"
)

// CredentialRepository implements port.CredentialRepository over the
// authn_credentials table used by the simple backend.
type CredentialRepository struct {
	db     DatabaseIface
	logger *slog.Logger
}

// NewCredentialRepository creates a new PostgreSQL credential repository
func NewCredentialRepository(db DatabaseIface, logger *slog.Logger) port.CredentialRepository {
	return &CredentialRepository{
		db:     db,
		logger: logger.With("component", "credential_repository"),
	}
}

// FindByLogin fetches a credential row by its canonical login key.
// A missing row is reported as pgx.ErrNoRows wrapped in a sentinel-free
// (nil, nil) pair so the backend decides how absence maps into the
// authentication taxonomy.
func (r *CredentialRepository) FindByLogin(ctx context.Context, login string) (*domain.Credential, error) {
	const query = `
		SELECT email, login_email, COALESCE(password, '')
		FROM authn_credentials
		WHERE login_email = $1`

	var cred domain.Credential
	row := r.db.QueryRow(ctx, query, login)
	if err := row.Scan(&cred.Email, &cred.LoginEmail, &cred.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("credential lookup failed", "error", err)
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	return &cred, nil
}

// Insert stores a new credential row.
func (r *CredentialRepository) Insert(ctx context.Context, cred *domain.Credential) error {
	const query = `
		INSERT INTO authn_credentials (email, login_email, password)
		VALUES ($1, $2, $3)`

	if _, err := r.db.Exec(ctx, query, cred.Email, cred.LoginEmail, cred.PasswordHash); err != nil {
		r.logger.Error("credential insert failed", "error", err)
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}
