package session

import (
	"errors"
	"testing"
)

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Unauthenticated, Authenticating, true},
		{Unauthenticated, Authenticated, false},
		{Authenticating, Authenticated, true},
		{Authenticating, Error, true},
		{Authenticating, Refreshing, false},
		{Authenticated, Refreshing, true},
		{Authenticated, Authenticating, false},
		{Refreshing, Authenticated, true},
		{Refreshing, Expired, true},
		{Refreshing, Error, true},
		{Expired, Authenticating, true},
		{Expired, Refreshing, false},
		{Expired, Authenticated, false},
		{Error, Refreshing, true},
		{Error, Authenticating, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestState_LogoutFromAnywhere(t *testing.T) {
	for _, s := range []State{Unauthenticated, Authenticating, Authenticated, Refreshing, Expired, Error} {
		if !s.CanTransitionTo(Unauthenticated) {
			t.Errorf("%s must allow logout", s)
		}
	}
}

func TestStore_RejectsIllegalTransition(t *testing.T) {
	s := NewStore()
	_, err := s.apply(0, change{to: Refreshing})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if s.State() != Unauthenticated {
		t.Fatalf("state must not change on a refused transition")
	}
}

func TestStore_StaleEpochIsDiscarded(t *testing.T) {
	s := NewStore()
	snap, err := s.force(change{to: Authenticating, newEpoch: true})
	if err != nil {
		t.Fatalf("force: %v", err)
	}

	s.reset(nil)

	if _, err := s.apply(snap.Epoch, change{to: Authenticated, session: &Session{RefreshToken: "r1"}}); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("expected ErrLoggedOut, got %v", err)
	}
	if got := s.Snapshot(); got.State != Unauthenticated || got.Session != nil {
		t.Fatalf("stale response must not land, got %+v", got)
	}
}

func TestStore_WatchSeesEveryTransition(t *testing.T) {
	s := NewStore()
	var seen []State
	s.Watch(func(snap Snapshot) { seen = append(seen, snap.State) })

	snap, _ := s.force(change{to: Authenticating, newEpoch: true})
	_, _ = s.apply(snap.Epoch, change{to: Authenticated, session: &Session{RefreshToken: "r1"}})
	s.reset(nil)

	want := []State{Authenticating, Authenticated, Unauthenticated}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	snap, _ := s.force(change{to: Authenticating, newEpoch: true})
	_, _ = s.apply(snap.Epoch, change{to: Authenticated, session: &Session{RefreshToken: "r1"}})

	got := s.Snapshot()
	got.Session.RefreshToken = "tampered"
	if s.Snapshot().Session.RefreshToken != "r1" {
		t.Fatalf("snapshot must not alias the store")
	}
}
