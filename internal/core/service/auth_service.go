package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// AuthService orchestrates magic-link login, token refresh, logout and the
// admin operations that affect live sessions.
type AuthService struct {
	links       ports.MagicLinkService
	tokens      ports.TokenIssuer
	users       ports.UserRepository
	maintenance ports.MaintenanceStore
	events      ports.SessionEventPublisher
	log         zerolog.Logger
	now         func() time.Time
}

func NewAuthService(
	links ports.MagicLinkService,
	tokens ports.TokenIssuer,
	users ports.UserRepository,
	maintenance ports.MaintenanceStore,
	events ports.SessionEventPublisher,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		links:       links,
		tokens:      tokens,
		users:       users,
		maintenance: maintenance,
		events:      events,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.AuthService = (*AuthService)(nil)

// RequestMagicLink sends a login link to email.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string, metadata map[string]string) error {
	if s.Maintenance(ctx) {
		return domain.ErrMaintenance
	}
	return s.links.RequestLink(ctx, email, metadata)
}

// Verify redeems a magic link and opens a new session.
func (s *AuthService) Verify(ctx context.Context, email, token string) (*domain.Login, error) {
	if s.Maintenance(ctx) {
		return nil, domain.ErrMaintenance
	}

	redemption, err := s.links.Redeem(ctx, email, token)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, redemption.Identity)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	s.publish(ctx, domain.SessionEvent{
		Kind:   domain.SessionLogin,
		UserID: redemption.Identity.ID,
		Role:   redemption.Identity.Role,
		At:     s.now(),
	})

	return &domain.Login{Identity: redemption.Identity, Tokens: pair, Metadata: redemption.Metadata}, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if s.Maintenance(ctx) {
		return nil, domain.ErrMaintenance
	}
	return s.tokens.Rotate(ctx, refreshToken)
}

// Logout revokes the login behind refreshToken and tells the tabs sharing it.
// Logins on other devices keep running.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID int64) error {
	familyID, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if userID > 0 && familyID != "" {
		s.publish(ctx, domain.SessionEvent{Kind: domain.SessionLogout, UserID: userID, FamilyID: familyID, At: s.now()})
		s.log.Info().Int64("user_id", userID).Str("family_id", familyID).Msg("user logged out")
	}
	return nil
}

// Session resolves an access token to the current identity. A token whose role
// no longer matches the stored identity is rejected so the client re-authenticates.
func (s *AuthService) Session(ctx context.Context, accessToken string) (*domain.Identity, *domain.AccessClaims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidToken
		}
		return nil, nil, err
	}
	if user.Role != claims.Role {
		return nil, nil, fmt.Errorf("%w: role changed", domain.ErrInvalidToken)
	}
	return user, claims, nil
}

// Invite creates an identity and mails it a link carrying the invitation context.
func (s *AuthService) Invite(ctx context.Context, email, name string, role domain.Role, invitedBy int64) (*domain.Identity, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	addr, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user, err := s.users.Create(ctx, &domain.Identity{
		Email:     addr,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]string{
		domain.MetaInvitedBy:   fmt.Sprint(invitedBy),
		domain.MetaCallbackURL: domain.LandingPath(role),
	}
	if err := s.links.RequestLink(ctx, addr, meta); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("invitation link not sent")
	}

	s.log.Info().Int64("user_id", user.ID).Int64("invited_by", invitedBy).Str("role", role.String()).Msg("user invited")
	return user, nil
}

// ChangeRole applies a role migration. Every outstanding login of the user is
// revoked, so no token carrying the old role can be refreshed.
func (s *AuthService) ChangeRole(ctx context.Context, userID int64, role domain.Role) (*domain.Identity, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	user, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.SessionEvent{Kind: domain.SessionRoleChanged, UserID: userID, Role: role, At: s.now()})
	s.log.Info().Int64("user_id", userID).Str("role", role.String()).Msg("role changed, sessions revoked")
	return user, nil
}

// SetMaintenance flips the maintenance switch.
func (s *AuthService) SetMaintenance(ctx context.Context, enabled bool) error {
	if err := s.maintenance.SetEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("set maintenance: %w", err)
	}
	s.log.Warn().Bool("enabled", enabled).Msg("maintenance mode changed")
	return nil
}

// Maintenance reports whether auth attempts are currently refused. A failing
// store reads as "not in maintenance".
func (s *AuthService) Maintenance(ctx context.Context) bool {
	if s.maintenance == nil {
		return false
	}
	on, err := s.maintenance.Enabled(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("maintenance flag unavailable")
		return false
	}
	return on
}

func (s *AuthService) publish(ctx context.Context, event domain.SessionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Int64("user_id", event.UserID).Str("kind", string(event.Kind)).Msg("failed to publish session event")
	}
}
