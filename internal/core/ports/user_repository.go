package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// UserRepository is the persistence collaborator owning identities.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, user *domain.Identity) (*domain.Identity, error)
	UpdateRole(ctx context.Context, id int64, role domain.Role) (*domain.Identity, error)
}
