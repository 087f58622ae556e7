package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

func TestFeed_BroadcastsServerEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(domain.SessionEvent{Kind: domain.SessionRevoked, UserID: 7, At: time.Now()})
		// Hold the socket until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	ch := NewChannel()
	tab := ch.Join()
	token := func(context.Context) (string, error) { return "a1", nil }
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), token, ch, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	select {
	case <-tab.Pending():
	case <-time.After(time.Second):
		t.Fatalf("no event reached the tab")
	}
	events := tab.Drain()
	if len(events) != 1 || events[0].Kind != EventReauth {
		t.Fatalf("expected one reauth event, got %+v", events)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFeed_StopsWithoutSession(t *testing.T) {
	token := func(context.Context) (string, error) { return "", ErrNotAuthenticated }
	feed := NewFeed("ws://127.0.0.1:1/auth/session/events", token, NewChannel(), zerolog.Nop())

	if err := feed.Run(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFeedEvent_Mapping(t *testing.T) {
	tests := []struct {
		kind domain.SessionEventKind
		want EventKind
	}{
		{domain.SessionLogout, EventLogout},
		{domain.SessionRevoked, EventReauth},
		{domain.SessionRoleChanged, EventReauth},
	}
	for _, tt := range tests {
		got, ok := feedEvent(domain.SessionEvent{Kind: tt.kind})
		if !ok || got.Kind != tt.want {
			t.Errorf("%s: got %v %v", tt.kind, got.Kind, ok)
		}
	}
	if _, ok := feedEvent(domain.SessionEvent{Kind: "unknown"}); ok {
		t.Errorf("unknown kinds must be ignored")
	}

	if got, _ := feedEvent(domain.SessionEvent{Kind: domain.SessionLogout, FamilyID: "fam-2"}); got.Family != "fam-2" {
		t.Errorf("logout must keep its family, got %q", got.Family)
	}
	if got, _ := feedEvent(domain.SessionEvent{Kind: domain.SessionRevoked, FamilyID: "fam-2"}); got.Family != "fam-2" {
		t.Errorf("revoked must keep its family, got %q", got.Family)
	}
	if got, _ := feedEvent(domain.SessionEvent{Kind: domain.SessionRoleChanged, FamilyID: "fam-2"}); got.Family != "" {
		t.Errorf("role changes apply to every login, got family %q", got.Family)
	}
}
