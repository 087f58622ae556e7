package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MagicLink is a single-use, time-boxed login token bound to an email.
// Only the SHA-256 of the token is ever persisted.
type MagicLink struct {
	TokenHash string            `json:"-"`
	Email     string            `json:"email"`
	ExpiresAt time.Time         `json:"expires_at"`
	Used      bool              `json:"used"`
	UsedAt    *time.Time        `json:"used_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Redeemable reports whether the link may still authenticate email at now.
// A used link is never redeemable, whatever its expiry.
func (m *MagicLink) Redeemable(email string, now time.Time) bool {
	if m == nil || m.Used {
		return false
	}
	return m.Email == email && now.Before(m.ExpiresAt)
}

// Redemption is the outcome of a successful magic-link redemption.
type Redemption struct {
	Identity *Identity
	Metadata map[string]string
}

// HashToken returns the hex SHA-256 of an opaque token. Tokens are high-entropy
// random strings, so an unsalted digest is enough and keeps lookups indexable.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Metadata keys understood by the verify flow.
const (
	MetaCallbackURL = "callbackUrl"
	MetaInvitedBy   = "invitedBy"
)
