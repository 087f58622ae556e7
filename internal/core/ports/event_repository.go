package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// AuditRepository persists the session audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	// ListByUser returns the newest entries first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error)
}
