package handler

import (
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type requestLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
	// CallbackURL is the same-origin path to land on after sign-in.
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required,hexadecimal,len=64"`
}

type loginResponse struct {
	User         *domain.Identity `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int64            `json:"expiresIn"`
	Redirect     string           `json:"redirect"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type sessionResponse struct {
	User      *domain.Identity `json:"user"`
	Role      domain.Role      `json:"role"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type maintenanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type maintenanceResponse struct {
	Enabled bool `json:"enabled"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager member"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=120"`
	Role  string `json:"role" validate:"required,oneof=admin manager member"`
}
