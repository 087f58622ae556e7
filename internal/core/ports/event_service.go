package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// AuditLog records every session event before passing it on, and answers
// history queries for admins.
type AuditLog interface {
	SessionEventPublisher
	History(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error)
}
