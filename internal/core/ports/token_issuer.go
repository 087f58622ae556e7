package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// TokenVerifier checks access tokens. It never panics on malformed input.
type TokenVerifier interface {
	Verify(token string) (*domain.AccessClaims, error)
}

type TokenIssuer interface {
	TokenVerifier
	Issue(ctx context.Context, identity *domain.Identity) (*domain.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	// Revoke ends the login behind refreshToken and returns its family id,
	// empty when the token is unknown.
	Revoke(ctx context.Context, refreshToken string) (string, error)
	RevokeUser(ctx context.Context, userID int64) error
}
