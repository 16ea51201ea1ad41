package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, password_hash, role, verified)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, nullIfEmpty(u.Username), nullIfEmpty(u.Email), nullIfEmpty(u.PasswordHash), string(u.Role), u.Verified)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, username, email, password_hash, role, verified, created_at
FROM users WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsernameOrEmail selects a user whose username or email equals v.
func (r *UserRepo) GetByUsernameOrEmail(ctx context.Context, v string) (*model.User, error) {
	const q = `
SELECT id, username, email, password_hash, role, verified, created_at
FROM users WHERE username=$1 OR email=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, v))
}

// Upgrade promotes an anonymous account to a credentialed one. The role
// predicate makes the promotion a compare-and-swap: a concurrent upgrade
// loses the race and observes ErrInvalidState.
func (r *UserRepo) Upgrade(ctx context.Context, id uuid.UUID, username, email, passwordHash string, role model.Role) error {
	const q = `
UPDATE users
SET username = COALESCE($2, username),
    email = COALESCE($3, email),
    password_hash = $4,
    role = $5
WHERE id = $1 AND role = 'anonymous'`
	tag, err := r.db.Pool.Exec(ctx, q,
		id, nullIfEmpty(username), nullIfEmpty(email), passwordHash, string(role))
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidState
	}
	return nil
}

// SetVerified flips the verification flag.
func (r *UserRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	const q = `UPDATE users SET verified = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u                        model.User
		username, email, pwdHash *string
		role                     string
	)
	if err := row.Scan(&u.ID, &username, &email, &pwdHash, &role, &u.Verified, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	u.Username = deref(username)
	u.Email = deref(email)
	u.PasswordHash = deref(pwdHash)
	u.Role = model.Role(role)
	return &u, nil
}
