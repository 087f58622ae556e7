package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
	"github.com/shopdesk/seller-auth/pkg/logger"
)

const (
	defaultAccessTTL  = 10 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	opaqueTokenBytes  = 32
)

// TokenIssuerConfig carries the signing key and lifetimes.
type TokenIssuerConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// accessClaims is the JWT payload: sub carries the user id, jti a ULID and sid
// the refresh family, so a logout can be matched to the tabs sharing it.
type accessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	users      ports.UserRepository
	tokens     ports.RefreshTokenRepository
	events     ports.SessionEventPublisher
	log        zerolog.Logger
	now        func() time.Time
}

// NewTokenIssuer returns a TokenIssuer signing HS256 access tokens and storing
// refresh token hashes in tokens.
func NewTokenIssuer(
	cfg TokenIssuerConfig,
	users ports.UserRepository,
	tokens ports.RefreshTokenRepository,
	events ports.SessionEventPublisher,
	log zerolog.Logger,
) ports.TokenIssuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &tokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		users:      users,
		tokens:     tokens,
		events:     events,
		log:        log,
		now:        func() time.Time { return cfg.Now().UTC() },
	}
}

// Issue starts a new refresh family for identity.
func (s *tokenIssuer) Issue(ctx context.Context, identity *domain.Identity) (*domain.TokenPair, error) {
	if identity == nil || !identity.Role.Valid() {
		return nil, fmt.Errorf("issue tokens: %w", domain.ErrInvalidRole)
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return s.issue(ctx, identity, ulid.Make().String(), refresh)
}

func (s *tokenIssuer) issue(ctx context.Context, identity *domain.Identity, familyID, refresh string) (*domain.TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.signAccess(identity, familyID, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	record := &domain.RefreshToken{
		Hash:      domain.HashToken(refresh),
		FamilyID:  familyID,
		UserID:    identity.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:        access,
		AccessTokenExpiry:  accessExp,
		RefreshToken:       refresh,
		RefreshTokenExpiry: record.ExpiresAt,
	}, nil
}

func (s *tokenIssuer) signAccess(identity *domain.Identity, familyID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		Role:      identity.Role.String(),
		SessionID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(identity.ID, 10),
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns domain.ErrTokenExpired for an authentic but expired token and
// domain.ErrInvalidToken for anything else that is not a valid access token.
func (s *tokenIssuer) Verify(token string) (*domain.AccessClaims, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, domain.ErrInvalidToken
	}

	out := &domain.AccessClaims{UserID: userID, Role: role, ID: claims.ID, SessionID: claims.SessionID}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Rotate exchanges a refresh token for a new pair in the same family. The old
// token is marked rotated before its successor is stored, so the two are never
// valid at the same time. Presenting an already-rotated token revokes the family.
// Failures after the old token is retired put it back, so a retry after a
// transient error is not mistaken for reuse.
func (s *tokenIssuer) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.ErrRefreshFailed
	}
	now := s.now()
	hash := domain.HashToken(refreshToken)

	// 1. Look up the presented token without changing it.
	rec, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshFailed) {
			return nil, domain.ErrRefreshFailed
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if rec.RotatedAt != nil {
		return nil, s.rejectRotation(ctx, hash, now)
	}
	if !rec.Active(now) {
		return nil, domain.ErrRefreshFailed
	}

	// 2. Reload the identity so the new access token carries the current role.
	identity, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = s.tokens.RevokeFamily(ctx, rec.FamilyID, now)
			return nil, domain.ErrRefreshFailed
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if !identity.Role.Valid() {
		_ = s.tokens.RevokeFamily(ctx, rec.FamilyID, now)
		return nil, domain.ErrRefreshFailed
	}

	next, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	nextHash := domain.HashToken(next)

	// 3. Atomically retire the presented token. Losing here means a concurrent
	// rotation won.
	if _, err := s.tokens.MarkRotated(ctx, hash, nextHash, now); err != nil {
		if errors.Is(err, domain.ErrRefreshFailed) {
			return nil, s.rejectRotation(ctx, hash, now)
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}

	// 4. Issue the successor, or undo step 3 so the caller can retry.
	pair, err := s.issue(ctx, identity, rec.FamilyID, next)
	if err != nil {
		if uerr := s.tokens.RestoreRotated(context.WithoutCancel(ctx), hash, nextHash); uerr != nil {
			s.log.Error().Err(uerr).Str("family_id", rec.FamilyID).Msg("failed to restore refresh token after rotation error")
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}

	s.log.Debug().Int64("user_id", identity.ID).Str("family_id", rec.FamilyID).Msg("refresh token rotated")
	return pair, nil
}

// rejectRotation classifies a failed rotation. Reuse of a rotated token is
// treated as theft: the family is revoked and every tab is told.
func (s *tokenIssuer) rejectRotation(ctx context.Context, hash string, now time.Time) error {
	rec, err := s.tokens.FindByHash(ctx, hash)
	// Unknown, expired or already revoked: nothing left to protect.
	if err != nil || rec == nil || rec.RotatedAt == nil || rec.RevokedAt != nil {
		return domain.ErrRefreshFailed
	}

	if err := s.tokens.RevokeFamily(ctx, rec.FamilyID, now); err != nil {
		s.log.Error().Err(err).Str("family_id", rec.FamilyID).Msg("failed to revoke reused refresh family")
	}
	s.log.Warn().
		Int64("user_id", rec.UserID).
		Str("family_id", rec.FamilyID).
		Str("token", logger.Fingerprint(hash)).
		Msg("refresh token reuse detected, family revoked")

	if s.events != nil {
		event := domain.SessionEvent{Kind: domain.SessionRevoked, UserID: rec.UserID, FamilyID: rec.FamilyID, At: now}
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Warn().Err(err).Int64("user_id", rec.UserID).Msg("failed to publish session event")
		}
	}
	return domain.ErrRefreshReused
}

// Revoke ends the login the refresh token belongs to. Unknown tokens are ignored.
func (s *tokenIssuer) Revoke(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", nil
	}
	rec, err := s.tokens.FindByHash(ctx, domain.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrRefreshFailed) {
			return "", nil
		}
		return "", fmt.Errorf("revoke: %w", err)
	}
	if err := s.tokens.RevokeFamily(ctx, rec.FamilyID, s.now()); err != nil {
		return "", fmt.Errorf("revoke: %w", err)
	}
	return rec.FamilyID, nil
}

// RevokeUser ends every login of userID.
func (s *tokenIssuer) RevokeUser(ctx context.Context, userID int64) error {
	if err := s.tokens.RevokeUser(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	return nil
}

func newOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
