package service

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type auditLog struct {
	repo ports.AuditRepository
	next ports.SessionEventPublisher
	log  zerolog.Logger
}

// NewAuditLog wraps next so every published event is also written to repo.
// next may be nil when nothing else listens.
func NewAuditLog(repo ports.AuditRepository, next ports.SessionEventPublisher, log zerolog.Logger) ports.AuditLog {
	return &auditLog{repo: repo, next: next, log: log}
}

// Publish persists event and forwards it.
func (a *auditLog) Publish(ctx context.Context, event domain.SessionEvent) error {
	// 1. Insert into the audit trail (non-fatal on failure).
	entry := domain.NewAuditEntry(ulid.Make().String(), event)
	if err := a.repo.Insert(ctx, entry); err != nil {
		a.log.Warn().Err(err).Int64("user_id", event.UserID).Str("kind", string(event.Kind)).Msg("failed to insert audit entry")
	}

	// 2. Fan out to open tabs.
	if a.next == nil {
		return nil
	}
	if err := a.next.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// History returns up to limit entries for userID, newest first.
func (a *auditLog) History(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error) {
	if userID <= 0 {
		return nil, domain.ErrUserNotFound
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	entries, err := a.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	return entries, nil
}
