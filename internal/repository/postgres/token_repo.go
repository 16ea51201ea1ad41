package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
)

// TokenRepo implements RefreshTokenRepository using PostgreSQL. Rows are
// never deleted; revocation and rotation only set revoked_at/replaced_by_id.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh-token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a new active record.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (id, user_id, token_hash, device_id, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.UserID, t.TokenHash, nilIfZero(t.DeviceID), t.ExpiresAt)
	return err
}

// GetByID selects a record by jti.
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.RefreshToken, error) {
	const q = `
SELECT id, user_id, token_hash, device_id, expires_at, revoked_at, replaced_by_id, created_at
FROM refresh_tokens WHERE id=$1`
	var (
		t        model.RefreshToken
		deviceID *uuid.UUID
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &deviceID, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedByID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrTokenNotFound
	}
	if deviceID != nil {
		t.DeviceID = *deviceID
	}
	return &t, nil
}

// Rotate inserts next and revokes oldID in one transaction. The successor
// row is written first: replaced_by_id carries a non-deferrable foreign key,
// so the CAS update must reference an existing row. The revocation is
// conditional on the old row still being active, so two racing rotations
// resolve with exactly one winner; the loser rolls back its insert and
// observes ErrTokenRevoked.
func (r *TokenRepo) Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertQ = `
INSERT INTO refresh_tokens (id, user_id, token_hash, device_id, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insertQ,
		next.ID, next.UserID, next.TokenHash, nilIfZero(next.DeviceID), next.ExpiresAt); err != nil {
		return err
	}

	const revokeQ = `
UPDATE refresh_tokens
SET revoked_at = now(), replaced_by_id = $2
WHERE id = $1 AND revoked_at IS NULL AND replaced_by_id IS NULL`
	tag, err := tx.Exec(ctx, revokeQ, oldID, next.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrTokenRevoked
	}

	return tx.Commit(ctx)
}

// Revoke marks a single active record revoked.
func (r *TokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE refresh_tokens
SET revoked_at = now()
WHERE id = $1 AND revoked_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrTokenRevoked
	}
	return nil
}

// RevokeAllForUser revokes every currently-active record of the user in a
// single statement. Tokens created after the statement's snapshot stay valid.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `
UPDATE refresh_tokens
SET revoked_at = now()
WHERE user_id = $1 AND revoked_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// nilIfZero maps uuid.Nil to SQL NULL for optional uuid columns.
func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
