package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const defaultSkew = 30 * time.Second

type Options struct {
	// Skew refreshes the access token this long before it expires.
	Skew time.Duration
	// Timeout bounds every call to the server.
	Timeout time.Duration
	// Channel links this coordinator to the other tabs of the origin.
	Channel *Channel
	Log     zerolog.Logger
	Now     func() time.Time
}

// Coordinator drives one browser context's session: sign-in, transparent
// refresh and logout, kept consistent with the other tabs of the origin.
type Coordinator struct {
	api     API
	store   *Store
	member  *Member
	rot     *rotator
	local   singleflight.Group
	skew    time.Duration
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	signingIn atomic.Bool
}

func NewCoordinator(api API, opts Options) *Coordinator {
	if opts.Skew <= 0 {
		opts.Skew = defaultSkew
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		api:     api,
		store:   NewStore(),
		skew:    opts.Skew,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     opts.Log,
	}
	if opts.Channel != nil {
		c.member = opts.Channel.Join()
		c.rot = &opts.Channel.rot
	} else {
		c.rot = &rotator{}
	}
	return c
}

// Store exposes the session state for rendering.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Pending fires when another tab posted an event. Nil without a Channel.
func (c *Coordinator) Pending() <-chan struct{} {
	if c.member == nil {
		return nil
	}
	return c.member.Pending()
}

// Close detaches the coordinator from its Channel.
func (c *Coordinator) Close() {
	if c.member != nil {
		c.member.Leave()
	}
}

// RequestLink asks the server to mail a sign-in link. It does not change state.
func (c *Coordinator) RequestLink(ctx context.Context, email, callbackURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.api.RequestLink(ctx, email, callbackURL)
}

// Login redeems a magic link. Only one redemption may be in flight; a
// second concurrent call gets ErrBusy without touching the server.
func (c *Coordinator) Login(ctx context.Context, email, token string) (*Login, error) {
	if !c.signingIn.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.signingIn.Store(false)
	c.Focus()

	// 1. Enter Authenticating under a fresh epoch.
	snap, err := c.store.force(change{to: Authenticating, newEpoch: true})
	if err != nil {
		return nil, err
	}

	// 2. Redeem.
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	login, err := c.api.Verify(rctx, email, token)
	if err != nil {
		err = transient(err)
		next := Unauthenticated
		if IsRetryable(err) {
			next = Error
		}
		_, _ = c.store.apply(snap.Epoch, change{to: next, err: err})
		return nil, err
	}

	// 3. Adopt the session if the tokens match the identity.
	sess, err := c.sessionFrom(login.User, &login.TokenPair)
	if err != nil {
		_, _ = c.store.apply(snap.Epoch, change{to: Unauthenticated, err: err})
		return nil, err
	}
	if _, err := c.store.apply(snap.Epoch, change{to: Authenticated, session: sess}); err != nil {
		return nil, err
	}
	c.log.Info().Int64("user_id", sess.Identity.ID).Str("role", sess.Role.String()).Msg("signed in")
	return login, nil
}

// AccessToken returns a token good for at least the configured skew,
// refreshing first when needed. Concurrent callers share one refresh.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	c.Focus()

	snap := c.store.Snapshot()
	switch snap.State {
	case Authenticated:
		if c.now().Add(c.skew).Before(snap.Session.AccessExpiry) {
			return snap.Session.AccessToken, nil
		}
	case Refreshing, Error:
		if snap.Session == nil {
			return "", ErrNotAuthenticated
		}
	case Expired:
		return "", ErrRefreshFailed
	default:
		return "", ErrNotAuthenticated
	}

	sess, err := c.refresh(ctx, snap.Session.RefreshToken)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// Refresh rotates the session now regardless of access token lifetime.
func (c *Coordinator) Refresh(ctx context.Context) (*Session, error) {
	c.Focus()
	snap := c.store.Snapshot()
	if snap.Session == nil {
		if snap.State == Expired {
			return nil, ErrRefreshFailed
		}
		return nil, ErrNotAuthenticated
	}
	return c.refresh(ctx, snap.Session.RefreshToken)
}

// Logout ends the session locally, tells the other tabs and then revokes
// it on the server. Any refresh still in flight is discarded when it lands.
func (c *Coordinator) Logout(ctx context.Context) error {
	prev := c.store.reset(nil)
	c.publish(Event{Kind: EventLogout})
	if prev == nil {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.api.Logout(rctx, prev.RefreshToken); err != nil && !errors.Is(err, ErrRefreshFailed) {
		c.log.Warn().Err(err).Int64("user_id", prev.Identity.ID).Msg("server logout failed")
		return transient(err)
	}
	return nil
}

// Focus applies what other tabs posted while this one was in the background.
func (c *Coordinator) Focus() {
	if c.member == nil {
		return
	}
	for _, e := range c.member.Drain() {
		c.apply(e)
	}
}

func (c *Coordinator) apply(e Event) {
	snap := c.store.Snapshot()
	// Another device's login ending says nothing about this one.
	if e.Family != "" && snap.Session != nil && snap.Session.Family != "" && snap.Session.Family != e.Family {
		return
	}
	switch e.Kind {
	case EventLogout:
		if snap.State != Unauthenticated {
			c.store.reset(nil)
		}
	case EventReauth:
		if snap.Session != nil {
			_, _ = c.store.force(change{to: Expired, err: ErrRefreshFailed, newEpoch: true})
		}
	case EventRefreshed:
		if e.Pair == nil || snap.Session == nil || snap.Session.RefreshToken == e.Pair.RefreshToken {
			return
		}
		// A tab mid-refresh gets the same pair from the shared rotator.
		if snap.State != Authenticated && snap.State != Error {
			return
		}
		next, err := c.sessionFrom(snap.Session.Identity, e.Pair)
		if err != nil {
			_, _ = c.store.force(change{to: Expired, err: err, newEpoch: true})
			return
		}
		_, _ = c.store.apply(snap.Epoch, change{to: Authenticated, session: next})
	}
}

// refresh coalesces every caller of this tab presenting refreshToken.
func (c *Coordinator) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.local.DoChan(refreshToken, func() (any, error) {
		return c.rotate(detached, refreshToken)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

func (c *Coordinator) rotate(ctx context.Context, presented string) (*Session, error) {
	// 1. Someone may have rotated since the caller looked.
	snap := c.store.Snapshot()
	switch {
	case snap.Session == nil && snap.State == Expired:
		return nil, ErrRefreshFailed
	case snap.Session == nil:
		return nil, ErrNotAuthenticated
	case snap.Session.RefreshToken != presented && snap.State == Authenticated:
		return snap.Session, nil
	}
	current := snap.Session

	// 2. Enter Refreshing.
	if snap.State != Refreshing {
		var err error
		if snap, err = c.store.apply(snap.Epoch, change{to: Refreshing, keep: true}); err != nil {
			return nil, err
		}
	}

	// 3. Rotate, shared with every tab on the channel.
	pair, err := c.rot.rotate(ctx, current.RefreshToken, c.now, func() (*TokenPair, error) {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.api.Refresh(rctx, current.RefreshToken)
	})
	if err != nil {
		return nil, c.refreshFailed(snap.Epoch, transient(err))
	}

	// 4. The new token must carry the session's role.
	next, err := c.sessionFrom(current.Identity, pair)
	if err != nil {
		return nil, c.expire(snap.Epoch, err)
	}
	if _, err := c.store.apply(snap.Epoch, change{to: Authenticated, session: next}); err != nil {
		return nil, err
	}
	c.publish(Event{Kind: EventRefreshed, Pair: pair})
	return next, nil
}

func (c *Coordinator) refreshFailed(epoch uint64, err error) error {
	if errors.Is(err, ErrRefreshFailed) {
		return c.expire(epoch, err)
	}
	if _, serr := c.store.apply(epoch, change{to: Error, keep: true, err: err}); serr != nil {
		return serr
	}
	c.log.Warn().Err(err).Msg("token refresh failed, will retry")
	return err
}

func (c *Coordinator) expire(epoch uint64, err error) error {
	if _, serr := c.store.apply(epoch, change{to: Expired, err: err, newEpoch: true}); serr != nil {
		return serr
	}
	c.publish(Event{Kind: EventReauth})
	c.log.Info().Err(err).Msg("session expired")
	return err
}

func (c *Coordinator) publish(e Event) {
	if c.member != nil {
		c.member.Publish(e)
	}
}

// sessionFrom builds the session for identity from pair. The role claim of
// the access token must be a known role equal to the identity's.
func (c *Coordinator) sessionFrom(identity domain.Identity, pair *TokenPair) (*Session, error) {
	claims, err := decodeAccess(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionChanged, err)
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok || role != identity.Role {
		return nil, ErrSessionChanged
	}

	expiry := c.now().Add(time.Duration(pair.ExpiresIn) * time.Second)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	return &Session{
		Identity:     identity,
		Role:         role,
		AccessToken:  pair.AccessToken,
		AccessExpiry: expiry,
		RefreshToken: pair.RefreshToken,
		Family:       claims.SessionID,
	}, nil
}

type accessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// decodeAccess reads the claims without checking the signature; only the
// server can verify it and the client merely needs role and expiry.
func decodeAccess(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// transient folds context deadline errors into ErrTransient.
func transient(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTransient) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
