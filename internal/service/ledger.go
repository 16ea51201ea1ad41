package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/offgrid-labs/authd/internal/crypto"
	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository"
)

// RefreshTokenLedger enforces single-use rotation over persisted
// refresh-token records. It stores only a one-way hash of each bearer
// string: a presented token whose signature verifies but whose hash no
// longer matches the active record is the replay signal this component
// exists to catch.
type RefreshTokenLedger struct {
	repo repository.RefreshTokenRepository
	now  func() time.Time
}

// NewRefreshTokenLedger constructs a RefreshTokenLedger.
func NewRefreshTokenLedger(repo repository.RefreshTokenRepository) *RefreshTokenLedger {
	return &RefreshTokenLedger{repo: repo, now: time.Now}
}

// Issue persists a new active record for a freshly signed refresh token.
// deviceID may be uuid.Nil for tokens not bound to a device.
func (l *RefreshTokenLedger) Issue(ctx context.Context, id, userID uuid.UUID, rawToken string, deviceID uuid.UUID, expiresAt time.Time) (*model.RefreshToken, error) {
	rec := &model.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: pkgcrypto.HashToken(rawToken),
		DeviceID:  deviceID,
		ExpiresAt: expiresAt,
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckPresented loads the record for id and validates the presented bearer
// string against it, in order: existence, revocation, expiry, hash match.
// The hash comparison is constant-time. Used by refresh.
func (l *RefreshTokenLedger) CheckPresented(ctx context.Context, id uuid.UUID, rawToken string) (*model.RefreshToken, error) {
	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Active() {
		return nil, errs.ErrTokenRevoked
	}
	if rec.ExpiresAt.Before(l.now()) {
		return nil, errs.ErrTokenExpired
	}
	if !pkgcrypto.TokenHashEqual(rawToken, rec.TokenHash) {
		return nil, errs.ErrTokenHashMismatch
	}
	return rec, nil
}

// Confirm validates existence, revocation state and hash match without the
// expiry check. Used by logout, where revoking an expired token is still a
// meaningful request.
func (l *RefreshTokenLedger) Confirm(ctx context.Context, id uuid.UUID, rawToken string) (*model.RefreshToken, error) {
	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Active() {
		return nil, errs.ErrTokenRevoked
	}
	if !pkgcrypto.TokenHashEqual(rawToken, rec.TokenHash) {
		return nil, errs.ErrTokenHashMismatch
	}
	return rec, nil
}

// Rotate atomically replaces record oldID with a successor for the freshly
// signed rawToken. The old record is revoked and linked to the successor in
// the same transaction; when two requests race to rotate the same token,
// exactly one succeeds and the other observes errs.ErrTokenRevoked.
func (l *RefreshTokenLedger) Rotate(ctx context.Context, oldID, newID, userID uuid.UUID, rawToken string, deviceID uuid.UUID, expiresAt time.Time) (*model.RefreshToken, error) {
	next := &model.RefreshToken{
		ID:        newID,
		UserID:    userID,
		TokenHash: pkgcrypto.HashToken(rawToken),
		DeviceID:  deviceID,
		ExpiresAt: expiresAt,
	}
	if err := l.repo.Rotate(ctx, oldID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Revoke terminates a single lineage (logout of one device).
func (l *RefreshTokenLedger) Revoke(ctx context.Context, id uuid.UUID) error {
	return l.repo.Revoke(ctx, id)
}

// RevokeAllForUser revokes every currently-active record of the user in one
// bulk operation. Tokens issued concurrently after its snapshot are not
// retroactively revoked.
func (l *RefreshTokenLedger) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.repo.RevokeAllForUser(ctx, userID)
}
