package domain

import "time"

// SessionEventKind identifies what happened to a user's sessions.
type SessionEventKind string

const (
	// SessionLogin: a magic link was redeemed and a new refresh family began.
	SessionLogin SessionEventKind = "login"
	// SessionLogout: the user signed out from one tab or device.
	SessionLogout SessionEventKind = "logout"
	// SessionRevoked: a refresh family was revoked after reuse was detected.
	SessionRevoked SessionEventKind = "revoked"
	// SessionRoleChanged: the stored role no longer matches issued tokens.
	SessionRoleChanged SessionEventKind = "role_changed"
)

// SessionEvent is broadcast to every open tab of the affected user.
type SessionEvent struct {
	Kind     SessionEventKind `json:"kind"`
	UserID   int64            `json:"user_id"`
	FamilyID string           `json:"family_id,omitempty"`
	Role     Role             `json:"role,omitempty"`
	At       time.Time        `json:"at"`
}

// ForcesReauth reports whether tabs receiving the event must drop their session.
func (e SessionEvent) ForcesReauth() bool {
	switch e.Kind {
	case SessionLogout, SessionRevoked, SessionRoleChanged:
		return true
	}
	return false
}
