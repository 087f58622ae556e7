package domain

import "time"

// TokenPair is what a login or a refresh hands back to the client.
type TokenPair struct {
	AccessToken        string    `json:"accessToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshToken       string    `json:"refreshToken"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
}

// ExpiresIn is the remaining access token lifetime in whole seconds.
func (p *TokenPair) ExpiresIn(now time.Time) int64 {
	d := p.AccessTokenExpiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// AccessClaims is the verified payload of an access token.
type AccessClaims struct {
	UserID int64
	Role   Role
	ID     string
	// SessionID is the refresh family the token was issued under.
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshToken is the server-side record of an opaque refresh token. Every
// rotation of a login stays in the same family so that reuse of any rotated
// member can revoke the whole chain.
type RefreshToken struct {
	Hash       string
	FamilyID   string
	UserID     int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RotatedAt  *time.Time
	RevokedAt  *time.Time
	ReplacedBy string
}

// Active reports whether the token can still be rotated at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RotatedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Login bundles everything a successful magic-link verification produces.
type Login struct {
	Identity *Identity
	Tokens   *TokenPair
	Metadata map[string]string
}
