package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"authn-service/app/domain"
	"authn-service/app/port"
)

// UserRepository implements port.UserRepository over the staff and student
// tables. Staff and students live in separate tables; the directory view
// is their union, with the staff admin flag mapped onto the role.
type UserRepository struct {
	db     DatabaseIface
	logger *slog.Logger
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db DatabaseIface, logger *slog.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.With("component", "user_repository"),
	}
}

const findUserQuery = `
	SELECT id, email, full_name, role FROM (
		SELECT id, email, full_name,
		       CASE WHEN is_admin THEN 'admin' ELSE 'staff' END AS role
		FROM staff
		UNION ALL
		SELECT id, email, full_name, 'student' AS role
		FROM students
	) directory
	WHERE lower(email) = $1`

// FindByEmail resolves an authenticated email to a directory record.
// Returns domain.ErrUserNotFound when the email is not a recognized
// application user.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	var role string

	row := r.db.QueryRow(ctx, findUserQuery, strings.ToLower(email))
	if err := row.Scan(&user.ID, &user.Email, &user.FullName, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		r.logger.Error("user directory lookup failed", "error", err)
		return nil, fmt.Errorf("querying user directory: %w", err)
	}

	user.Role = domain.UserRole(role)
	return &user, nil
}
