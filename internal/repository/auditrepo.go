package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/model"
)

// AuditRepository is the append-only store of security events. Nothing in
// the core ever mutates or deletes an entry.
type AuditRepository interface {
	// Append persists one audit entry.
	Append(ctx context.Context, e *model.AuditEntry) error
	// ListForUser returns the most recent entries for a user, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditEntry, error)
}
