package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// Session is the authenticated identity of one browser context plus the
// tokens that prove it. Role always equals the role claim of AccessToken.
type Session struct {
	Identity     domain.Identity
	Role         domain.Role
	AccessToken  string
	AccessExpiry time.Time
	RefreshToken string
	// Family is the sid claim: the server-side login the tokens belong to.
	Family string
}

// Snapshot is a consistent read of the store.
type Snapshot struct {
	State State
	// Session is a copy; nil unless the state carries tokens.
	Session *Session
	// Err is the failure that caused the last move to Error, Expired or
	// Unauthenticated, if any.
	Err error
	// Epoch changes whenever the session is replaced or ended. Responses
	// started under an older epoch are discarded.
	Epoch uint64
}

// Store is the single source of truth for a browser context's session.
// Every mutation goes through apply, which enforces the state machine.
type Store struct {
	mu       sync.RWMutex
	state    State
	session  *Session
	err      error
	epoch    uint64
	watchers []func(Snapshot)
}

func NewStore() *Store {
	return &Store{state: Unauthenticated}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// State is shorthand for Snapshot().State.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Watch registers fn to be called after every transition. fn runs outside
// the store lock and must not block.
func (s *Store) Watch(fn func(Snapshot)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, Err: s.err, Epoch: s.epoch}
	if s.session != nil {
		cp := *s.session
		snap.Session = &cp
	}
	return snap
}

// change describes one transition.
type change struct {
	to State
	// session replaces the held session when keep is false.
	session *Session
	keep    bool
	err     error
	// newEpoch invalidates everything started before this transition.
	newEpoch bool
}

// apply performs c if the store is still at epoch. It returns ErrLoggedOut
// when the epoch moved on and ErrIllegalTransition when the state machine
// forbids the move.
func (s *Store) apply(epoch uint64, c change) (Snapshot, error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return Snapshot{}, ErrLoggedOut
	}
	snap, err := s.applyLocked(c)
	watchers := s.watchers
	s.mu.Unlock()

	if err == nil {
		notify(watchers, snap)
	}
	return snap, err
}

// force performs c regardless of epoch. Logout and cross-tab events use it.
func (s *Store) force(c change) (Snapshot, error) {
	s.mu.Lock()
	snap, err := s.applyLocked(c)
	watchers := s.watchers
	s.mu.Unlock()

	if err == nil {
		notify(watchers, snap)
	}
	return snap, err
}

// reset ends the session from any state and returns what was held.
func (s *Store) reset(err error) *Session {
	s.mu.Lock()
	prev := s.session
	snap, _ := s.applyLocked(change{to: Unauthenticated, err: err, newEpoch: true})
	watchers := s.watchers
	s.mu.Unlock()

	notify(watchers, snap)
	return prev
}

func (s *Store) applyLocked(c change) (Snapshot, error) {
	if !s.state.CanTransitionTo(c.to) {
		return Snapshot{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.state, c.to)
	}
	s.state = c.to
	s.err = c.err
	if !c.keep {
		s.session = c.session
	}
	if c.newEpoch {
		s.epoch++
	}
	return s.snapshotLocked(), nil
}

func notify(watchers []func(Snapshot), snap Snapshot) {
	for _, fn := range watchers {
		fn(snap)
	}
}
