package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

// Create inserts a new device row.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	const q = `
INSERT INTO devices (id, user_id, type, name, last_seen_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.UserID, string(d.Type), d.Name, d.LastSeenAt)
	return err
}

// GetByID selects a device by ID.
func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	const q = `
SELECT id, user_id, type, name, last_seen_at
FROM devices WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// FindByTriple selects the device matching (userID, type, name).
func (r *DeviceRepo) FindByTriple(ctx context.Context, userID uuid.UUID, typ model.DeviceType, name string) (*model.Device, error) {
	const q = `
SELECT id, user_id, type, name, last_seen_at
FROM devices WHERE user_id=$1 AND type=$2 AND name=$3`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, userID, string(typ), name))
}

// Touch updates last_seen_at and, when name is non-empty, the display name.
func (r *DeviceRepo) Touch(ctx context.Context, id uuid.UUID, name string, seenAt time.Time) error {
	const q = `
UPDATE devices
SET last_seen_at = $2, name = COALESCE($3, name)
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, seenAt, nullIfEmpty(name))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) scanOne(row interface{ Scan(...any) error }) (*model.Device, error) {
	var (
		d   model.Device
		typ string
	)
	if err := row.Scan(&d.ID, &d.UserID, &typ, &d.Name, &d.LastSeenAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	d.Type = model.DeviceType(typ)
	return &d, nil
}
