package domain

import (
	"errors"
	"fmt"
)

// Magic links.
var (
	// ErrInvalidLink is the only error a caller ever sees for a failed redemption,
	// whether the token was unknown, used, expired or issued to another email.
	ErrInvalidLink  = errors.New("invalid or expired link")
	ErrInvalidEmail = errors.New("invalid email")
	ErrRateLimited  = errors.New("too many requests")
)

// Tokens.
var (
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is an ErrInvalidToken, so callers that only care about
	// validity can test for the latter.
	ErrTokenExpired  = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrRefreshReused means an already-rotated refresh token was presented and
	// its whole family has been revoked.
	ErrRefreshReused = fmt.Errorf("%w: token reuse detected", ErrRefreshFailed)
)

// Authorization and availability.
var (
	ErrUnauthorized = errors.New("access denied")
	ErrMaintenance  = errors.New("maintenance")
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidRule  = errors.New("invalid authorization rule")
)

// Identities.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
