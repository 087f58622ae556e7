package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// AuthService is the use-case surface consumed by the HTTP handlers.
type AuthService interface {
	RequestMagicLink(ctx context.Context, email string, metadata map[string]string) error
	Verify(ctx context.Context, email, token string) (*domain.Login, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, userID int64) error
	Session(ctx context.Context, accessToken string) (*domain.Identity, *domain.AccessClaims, error)
	Invite(ctx context.Context, email, name string, role domain.Role, invitedBy int64) (*domain.Identity, error)
	ChangeRole(ctx context.Context, userID int64, role domain.Role) (*domain.Identity, error)
	SetMaintenance(ctx context.Context, enabled bool) error
	Maintenance(ctx context.Context) bool
}
