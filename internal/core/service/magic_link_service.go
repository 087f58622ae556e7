package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

const defaultMagicLinkTTL = 15 * time.Minute

// MagicLinkConfig controls link lifetime and delivery.
type MagicLinkConfig struct {
	TTL time.Duration
	// CallbackURL is the absolute URL of GET /auth/callback.
	CallbackURL string
	// SingleOutstanding invalidates earlier unused links of an email whenever a
	// new one is requested. Off by default so a delayed email stays usable.
	SingleOutstanding bool
	Now               func() time.Time
}

type magicLinkService struct {
	links      ports.MagicLinkRepository
	users      ports.UserRepository
	dispatcher ports.LinkDispatcher
	throttle   ports.RequestThrottle
	cfg        MagicLinkConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewMagicLinkService returns a MagicLinkService. throttle may be nil.
func NewMagicLinkService(
	cfg MagicLinkConfig,
	links ports.MagicLinkRepository,
	users ports.UserRepository,
	dispatcher ports.LinkDispatcher,
	throttle ports.RequestThrottle,
	log zerolog.Logger,
) ports.MagicLinkService {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultMagicLinkTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &magicLinkService{
		links:      links,
		users:      users,
		dispatcher: dispatcher,
		throttle:   throttle,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return cfg.Now().UTC() },
	}
}

// RequestLink issues a new single-use link for email. Unknown emails succeed
// silently so the endpoint cannot be used to enumerate accounts.
func (s *magicLinkService) RequestLink(ctx context.Context, email string, metadata map[string]string) error {
	addr, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}

	// 1. Per-address throttle. A broken limiter must not lock everyone out.
	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, "magic-link:"+addr)
		if err != nil {
			s.log.Warn().Err(err).Msg("magic link throttle unavailable, allowing request")
		} else if !ok {
			return domain.ErrRateLimited
		}
	}

	// 2. Only known identities get a link.
	user, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Info().Str("email", addr).Msg("magic link requested for unknown email")
			return nil
		}
		return fmt.Errorf("request link: %w", err)
	}

	now := s.now()

	// 3. Optional single-outstanding policy.
	if s.cfg.SingleOutstanding {
		n, err := s.links.InvalidateOutstanding(ctx, addr, now)
		if err != nil {
			return fmt.Errorf("request link: invalidate outstanding: %w", err)
		}
		if n > 0 {
			s.log.Debug().Str("email", addr).Int64("invalidated", n).Msg("earlier magic links invalidated")
		}
	}

	// 4. Persist the hash, never the token.
	token, err := newOpaqueToken()
	if err != nil {
		return fmt.Errorf("request link: %w", err)
	}
	link := &domain.MagicLink{
		TokenHash: domain.HashToken(token),
		Email:     addr,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
		Metadata:  metadata,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return fmt.Errorf("request link: %w", err)
	}

	// 5. Fire and forget.
	s.dispatcher.Dispatch(ports.MagicLinkMessage{
		Recipient: addr,
		Name:      user.Name,
		Link:      s.buildLink(addr, token),
		ExpiresAt: link.ExpiresAt,
	})

	s.log.Info().Int64("user_id", user.ID).Str("email", addr).Msg("magic link issued")
	return nil
}

// Redeem consumes a link. Every failure is reported as domain.ErrInvalidLink.
func (s *magicLinkService) Redeem(ctx context.Context, email, token string) (*domain.Redemption, error) {
	addr, err := domain.NormalizeEmail(email)
	if err != nil || token == "" {
		return nil, domain.ErrInvalidLink
	}

	link, err := s.links.Consume(ctx, domain.HashToken(token), addr, s.now())
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidLink) {
			s.log.Error().Err(err).Str("email", addr).Msg("magic link consume failed")
		}
		return nil, domain.ErrInvalidLink
	}

	user, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		s.log.Warn().Err(err).Str("email", addr).Msg("magic link redeemed for missing identity")
		return nil, domain.ErrInvalidLink
	}

	s.log.Info().Int64("user_id", user.ID).Str("email", addr).Msg("magic link redeemed")
	return &domain.Redemption{Identity: user, Metadata: link.Metadata}, nil
}

func (s *magicLinkService) buildLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)

	u, err := url.Parse(s.cfg.CallbackURL)
	if err != nil {
		return s.cfg.CallbackURL + "?" + q.Encode()
	}
	u.RawQuery = q.Encode()
	return u.String()
}
