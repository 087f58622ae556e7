package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const (
	feedMinBackoff = time.Second
	feedMaxBackoff = 30 * time.Second
)

// Feed listens to the server's session-event socket and broadcasts what it
// hears to every tab on a Channel. It lets a logout on another device, a
// revoked refresh family or a role change reach open tabs without waiting
// for their next refresh.
type Feed struct {
	url     string
	token   func(context.Context) (string, error)
	channel *Channel
	dialer  *websocket.Dialer
	log     zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewFeed dials url (ws:// or wss://) authenticating with whatever token
// returns, usually Coordinator.AccessToken.
func NewFeed(url string, token func(context.Context) (string, error), ch *Channel, log zerolog.Logger) *Feed {
	return &Feed{
		url:        url,
		token:      token,
		channel:    ch,
		dialer:     websocket.DefaultDialer,
		log:        log,
		minBackoff: feedMinBackoff,
		maxBackoff: feedMaxBackoff,
	}
}

// Run keeps the socket open until ctx is done or there is no longer a
// session to authenticate with.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.minBackoff
	for {
		connected, err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrRefreshFailed) {
			return err
		}
		if connected {
			backoff = f.minBackoff
		}
		f.log.Debug().Err(err).Dur("retry_in", backoff).Msg("session feed disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func (f *Feed) listen(ctx context.Context) (bool, error) {
	token, err := f.token(ctx)
	if err != nil {
		return false, err
	}

	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("%w: dial session feed: %s", ErrTransient, resp.Status)
		}
		return false, fmt.Errorf("%w: dial session feed: %w", ErrTransient, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var evt domain.SessionEvent
		if err := conn.ReadJSON(&evt); err != nil {
			return true, err
		}
		if e, ok := feedEvent(evt); ok {
			f.channel.Broadcast(e)
		}
	}
}

func feedEvent(evt domain.SessionEvent) (Event, bool) {
	if !evt.ForcesReauth() {
		return Event{}, false
	}
	switch evt.Kind {
	case domain.SessionLogout:
		return Event{Kind: EventLogout, Family: evt.FamilyID}, true
	case domain.SessionRevoked:
		return Event{Kind: EventReauth, Family: evt.FamilyID}, true
	}
	return Event{Kind: EventReauth}, true
}
