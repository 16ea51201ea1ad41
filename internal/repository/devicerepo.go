package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/model"
)

// DeviceRepository provides persistence for client devices. A device is
// identified by the exact (userID, type, name) triple.
type DeviceRepository interface {
	// Create inserts a new device.
	Create(ctx context.Context, d *model.Device) error
	// GetByID loads a device by ID. Returns errs.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	// FindByTriple loads the device matching (userID, type, name).
	// Returns errs.ErrNotFound if absent.
	FindByTriple(ctx context.Context, userID uuid.UUID, typ model.DeviceType, name string) (*model.Device, error)
	// Touch updates lastSeenAt (and name, when non-empty) on an existing
	// device. Returns errs.ErrNotFound if the device does not exist.
	Touch(ctx context.Context, id uuid.UUID, name string, seenAt time.Time) error
}
