package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/offgrid-labs/authd/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL. The table is
// append-only; no update or delete statements exist for it.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts one audit row. Meta is stored as jsonb.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEntry) error {
	const q = `
INSERT INTO audit_log (id, user_id, event, meta)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, e.ID, nilIfZero(e.UserID), string(e.Event), e.Meta)
	return err
}

// ListForUser returns the newest entries for a user.
func (r *AuditRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditEntry, error) {
	const q = `
SELECT id, user_id, event, meta, created_at
FROM audit_log WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e   model.AuditEntry
			uid *uuid.UUID
			ev  string
		)
		if err := rows.Scan(&e.ID, &uid, &ev, &e.Meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if uid != nil {
			e.UserID = *uid
		}
		e.Event = model.AuditEvent(ev)
		out = append(out, e)
	}
	return out, rows.Err()
}
