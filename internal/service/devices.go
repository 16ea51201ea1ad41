package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository"
)

// defaultDeviceName is used when a client supplies a type without a name.
const defaultDeviceName = "unknown"

// DeviceRegistry tracks client devices. A device is identified by the exact
// (userID, type, name) triple; there is no hardware fingerprinting.
type DeviceRegistry struct {
	repo repository.DeviceRepository
	now  func() time.Time
}

// NewDeviceRegistry constructs a DeviceRegistry.
func NewDeviceRegistry(repo repository.DeviceRepository) *DeviceRegistry {
	return &DeviceRegistry{repo: repo, now: time.Now}
}

// Upsert finds the device matching (userID, info.Type, info.Name) and marks
// it seen, or creates it when absent.
func (r *DeviceRegistry) Upsert(ctx context.Context, userID uuid.UUID, info model.DeviceInfo) (*model.Device, error) {
	if !info.Type.Valid() {
		return nil, errs.ErrInvalidInput
	}
	name := info.Name
	if name == "" {
		name = defaultDeviceName
	}
	now := r.now().UTC()

	existing, err := r.repo.FindByTriple(ctx, userID, info.Type, name)
	switch {
	case err == nil:
		if err := r.repo.Touch(ctx, existing.ID, name, now); err != nil {
			return nil, err
		}
		existing.Name = name
		existing.LastSeenAt = now
		return existing, nil
	case errors.Is(err, errs.ErrNotFound):
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		d := &model.Device{ID: id, UserID: userID, Type: info.Type, Name: name, LastSeenAt: now}
		if err := r.repo.Create(ctx, d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, err
	}
}

// Seen updates lastSeenAt on a device already bound to a session. Returns
// errs.ErrNotFound if the device no longer exists.
func (r *DeviceRegistry) Seen(ctx context.Context, deviceID uuid.UUID) error {
	return r.repo.Touch(ctx, deviceID, "", r.now().UTC())
}
