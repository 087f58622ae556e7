package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// EnsureAdmin creates the first administrator when email is not yet known.
// An empty email disables the bootstrap.
func EnsureAdmin(ctx context.Context, users ports.UserRepository, email, name string, log zerolog.Logger) error {
	if email == "" {
		return nil
	}
	addr, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}

	existing, err := users.FindByEmail(ctx, addr)
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			log.Warn().Int64("user_id", existing.ID).Str("role", existing.Role.String()).Msg("bootstrap admin email belongs to a non-admin")
		}
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	now := time.Now().UTC()
	created, err := users.Create(ctx, &domain.Identity{
		Email:     addr,
		Name:      name,
		Role:      domain.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil
		}
		return err
	}

	log.Info().Int64("user_id", created.ID).Str("email", addr).Msg("bootstrap admin created")
	return nil
}
