package ports

import (
	"context"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// MagicLinkRepository persists magic links keyed by token hash.
type MagicLinkRepository interface {
	Create(ctx context.Context, link *domain.MagicLink) error
	// Consume atomically marks the link used when it is unused, unexpired at now
	// and issued to email. Any miss returns domain.ErrInvalidLink.
	Consume(ctx context.Context, tokenHash, email string, now time.Time) (*domain.MagicLink, error)
	// InvalidateOutstanding marks every unused, unexpired link of email as used.
	InvalidateOutstanding(ctx context.Context, email string, now time.Time) (int64, error)
}
