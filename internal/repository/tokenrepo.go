package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/model"
)

// RefreshTokenRepository persists refresh-token records. Records are never
// deleted; revocation and rotation only ever set revoked_at/replaced_by_id.
type RefreshTokenRepository interface {
	// Create inserts a new active record.
	Create(ctx context.Context, t *model.RefreshToken) error
	// GetByID loads a record by its jti. Returns errs.ErrTokenNotFound
	// if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.RefreshToken, error)
	// Rotate atomically revokes the record oldID, links it to next.ID and
	// inserts next, all in one transaction. The revocation is a
	// compare-and-swap on "still active": if a concurrent request already
	// revoked or rotated oldID, Rotate returns errs.ErrTokenRevoked and
	// next is not created.
	Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error
	// Revoke marks a single record revoked. Revoking an already-revoked
	// record returns errs.ErrTokenRevoked.
	Revoke(ctx context.Context, id uuid.UUID) error
	// RevokeAllForUser revokes every currently-active record of the user
	// in one statement and reports how many were revoked. Tokens issued
	// after the statement's snapshot remain valid.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
