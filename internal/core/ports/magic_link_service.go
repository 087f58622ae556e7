package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

type MagicLinkService interface {
	RequestLink(ctx context.Context, email string, metadata map[string]string) error
	Redeem(ctx context.Context, email, token string) (*domain.Redemption, error)
}
