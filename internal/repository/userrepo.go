// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/model"
)

// UserRepository provides persistence for user accounts.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrConflict on a
	// username/email uniqueness violation.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID. Returns errs.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsernameOrEmail loads a user whose username or email equals v.
	// Returns errs.ErrNotFound if absent.
	GetByUsernameOrEmail(ctx context.Context, v string) (*model.User, error)
	// Upgrade promotes an anonymous account to a credentialed one in a
	// single conditional update: identity fields, password hash and role
	// are set only while the stored role is still anonymous. Returns
	// errs.ErrInvalidState if the account is no longer anonymous and
	// errs.ErrConflict on a uniqueness violation.
	Upgrade(ctx context.Context, id uuid.UUID, username, email, passwordHash string, role model.Role) error
	// SetVerified flips the verification flag. Returns errs.ErrNotFound
	// if the user does not exist.
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
}
