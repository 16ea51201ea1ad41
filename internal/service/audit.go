// Package service contains the session lifecycle services: the session
// manager, the refresh-token ledger, the device registry and the audit trail.
package service

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository"
)

// AuditTrail records security events synchronously: the entry exists before
// the operation's response is returned. A failed write is an operator
// concern, not a correctness precondition, so it is logged and swallowed.
type AuditTrail struct {
	repo repository.AuditRepository
	log  *zap.Logger
}

// NewAuditTrail constructs an AuditTrail.
func NewAuditTrail(repo repository.AuditRepository, log *zap.Logger) *AuditTrail {
	return &AuditTrail{repo: repo, log: log}
}

// Record appends one event. userID is uuid.Nil for pre-authentication
// failures. Never fails the calling operation.
func (a *AuditTrail) Record(ctx context.Context, userID uuid.UUID, event model.AuditEvent, meta map[string]any) {
	id, err := uuid.NewV4()
	if err != nil {
		a.log.Error("audit id generation failed", zap.Error(err), zap.String("event", string(event)))
		return
	}
	entry := &model.AuditEntry{ID: id, UserID: userID, Event: event, Meta: meta}
	if err := a.repo.Append(ctx, entry); err != nil {
		a.log.Error("audit write failed",
			zap.Error(err),
			zap.String("event", string(event)),
			zap.String("userID", userID.String()),
		)
	}
}
