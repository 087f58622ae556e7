package session

// State is the lifecycle state of one browser context's session.
type State int

const (
	Unauthenticated State = iota
	// Authenticating: a magic-link redemption is in flight.
	Authenticating
	// Authenticated: a usable access token is held.
	Authenticated
	// Refreshing: a rotation is in flight.
	Refreshing
	// Expired: the refresh token is no longer valid. Only a new sign-in leaves it.
	Expired
	// Error: the last network call failed transiently and may be retried.
	Error
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// transitions lists the legal moves besides logout, which is allowed from any
// state.
var transitions = map[State][]State{
	Unauthenticated: {Authenticating},
	Authenticating:  {Authenticated, Unauthenticated, Error},
	// Authenticated -> Authenticated adopts a pair rotated by another tab.
	Authenticated: {Authenticated, Refreshing, Expired},
	Refreshing:    {Authenticated, Expired, Error},
	Expired:       {Authenticating},
	Error:         {Authenticating, Authenticated, Refreshing, Expired},
}

// CanTransitionTo reports whether the machine may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	if next == Unauthenticated {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsSession reports whether s carries tokens the UI may act on.
func (s State) HoldsSession() bool {
	return s == Authenticated || s == Refreshing
}
