package domain

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// UserRole represents the role of a recognized application user.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleStaff   UserRole = "staff"
	UserRoleAdmin   UserRole = "admin"
)

// User is a recognized application user from the user directory. A
// credential backend proves who the caller is; presence in the directory
// is what authorizes them for this application.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"name"`
	Role     UserRole  `json:"user_type"`
}

// Credential is a locally stored login credential (simple backend only).
// Email is the display form shown back to the user; LoginEmail is the
// canonical lookup key; PasswordHash may be empty for externally managed
// accounts.
type Credential struct {
	Email        string
	LoginEmail   string
	PasswordHash string
}

// NewUser validates and builds a directory user record.
func NewUser(email, fullName string, role UserRole) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email format: %w", err)
	}
	switch role {
	case UserRoleStudent, UserRoleStaff, UserRoleAdmin:
	default:
		return nil, fmt.Errorf("invalid role: %q", role)
	}
	return &User{
		ID:       uuid.New(),
		Email:    strings.ToLower(email),
		FullName: fullName,
		Role:     role,
	}, nil
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
