package ports

import (
	"context"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// RefreshTokenRepository persists refresh token records keyed by token hash.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// MarkRotated atomically flags an active token as rotated and records its
	// successor. Returns domain.ErrRefreshFailed when no active token matches.
	MarkRotated(ctx context.Context, hash, replacedBy string, now time.Time) (*domain.RefreshToken, error)
	// RestoreRotated undoes MarkRotated while the token still points at
	// replacedBy, for a successor that was never stored.
	RestoreRotated(ctx context.Context, hash, replacedBy string) error
	FindByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string, now time.Time) error
	RevokeUser(ctx context.Context, userID int64, now time.Time) error
}
