package session

import (
	"errors"
	"fmt"
)

// Errors mirror the server taxonomy so callers can route the user to the
// right page without inspecting status codes.
var (
	// ErrInvalidLink: the magic link was unknown, used, expired or for another email.
	ErrInvalidLink = errors.New("invalid or expired link")
	// ErrRefreshFailed: the refresh token is gone. Terminal; the user must sign in again.
	ErrRefreshFailed = errors.New("session expired")
	// ErrSessionChanged: the server issued a token whose role differs from the
	// session's. It is an ErrRefreshFailed.
	ErrSessionChanged = fmt.Errorf("%w: role changed", ErrRefreshFailed)
	ErrUnauthorized   = errors.New("access denied")
	ErrMaintenance    = errors.New("maintenance")
	ErrRateLimited    = errors.New("too many requests")
	// ErrTransient: a network failure or timeout. The operation may be retried.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrBusy: a sign-in is already in flight for this tab.
	ErrBusy = errors.New("sign-in already in progress")
	// ErrNotAuthenticated: there is no session to act on.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrLoggedOut: the session ended while the operation was in flight and
	// its result was discarded.
	ErrLoggedOut = errors.New("logged out")
	// ErrIllegalTransition: the state machine refused a transition.
	ErrIllegalTransition = errors.New("illegal session transition")
)
