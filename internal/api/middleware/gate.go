package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/shopdesk/seller-auth/internal/api/cookies"
	"github.com/shopdesk/seller-auth/internal/api/metrics"
	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// OverrideParam is the query flag that lets an auth-entry page render while a
// session is already live (invitation acceptance, account switch).
const OverrideParam = "override"

const (
	refreshTimeout = 5 * time.Second
	// Parallel navigations that raced the rotation still carry the old refresh
	// cookie; they get the same pair instead of tripping reuse detection.
	recentRotationTTL = 10 * time.Second
	// retryAfter is the Retry-After hint, in seconds, when a refresh failed
	// for a reason other than the session itself.
	retryAfter = "5"
)

// Refresher rotates a refresh token. AuthService satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

// MaintenanceChecker reports the maintenance flag. AuthService satisfies it.
type MaintenanceChecker interface {
	Maintenance(ctx context.Context) bool
}

type GateConfig struct {
	Policy      *domain.AccessPolicy
	Verifier    ports.TokenVerifier
	Refresher   Refresher
	Maintenance MaintenanceChecker
	Cookies     cookies.Jar
	Log         zerolog.Logger
	Now         func() time.Time
}

// Gate authorizes page navigations before any page logic runs. It resolves the
// session from cookies, silently rotating an expired access token once per
// refresh token, then applies the access policy exactly once.
type Gate struct {
	cfg GateConfig

	group singleflight.Group

	mu     sync.Mutex
	recent map[string]recentRotation
}

type recentRotation struct {
	pair   *domain.TokenPair
	userID int64
	family string
	at     time.Time
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{cfg: cfg, recent: make(map[string]recentRotation)}
}

// Forget drops cached rotations of logins a session event ended, so a
// replayed refresh cookie cannot pick up their pair. It is a subscriber
// callback for session events.
func (g *Gate) Forget(event domain.SessionEvent) {
	if !event.ForcesReauth() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, r := range g.recent {
		if event.FamilyID != "" && r.family == event.FamilyID ||
			event.FamilyID == "" && r.userID == event.UserID {
			delete(g.recent, k)
		}
	}
}

// Middleware returns the gate as echo middleware.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return g.middleware
}

func (g *Gate) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		path := req.URL.Path
		target := req.URL.RequestURI()

		// 1. Auth attempts during maintenance go to the holding page.
		if g.cfg.Policy.AuthEntry(path) && g.cfg.Maintenance != nil && g.cfg.Maintenance.Maintenance(ctx) {
			return g.redirect(c, "maintenance", domain.MaintenancePath)
		}

		// 2. Resolve the session, refreshing when the access token is unusable.
		claims, err := g.session(c)
		switch {
		case errors.Is(err, domain.ErrMaintenance):
			if g.cfg.Policy.Protected(path) {
				return g.redirect(c, "maintenance", domain.MaintenancePath)
			}
		case errors.Is(err, domain.ErrRefreshFailed):
			if g.cfg.Policy.Protected(path) {
				return g.redirect(c, "expired", expiredRedirect(target))
			}
		case err != nil && !errors.Is(err, domain.ErrInvalidToken):
			// The session may still be good; keep the cookies and ask for a retry.
			if g.cfg.Policy.Protected(path) {
				return g.unavailable(c, target)
			}
		}

		// 3. One policy decision per request.
		decision := g.cfg.Policy.Decide(target, claims, c.QueryParam(OverrideParam) != "")
		if decision.Kind != domain.DecisionAllow {
			return g.redirect(c, decision.Kind.String(), decision.Location)
		}

		metrics.GateDecisionsTotal.WithLabelValues(domain.DecisionAllow.String()).Inc()
		if claims != nil {
			setClaims(c, claims)
		}
		return next(c)
	}
}

// session returns the caller's claims or nil. A non-nil error explains why a
// presented session could not be restored.
func (g *Gate) session(c echo.Context) (*domain.AccessClaims, error) {
	if access := cookies.Access(c); access != "" {
		claims, err := g.cfg.Verifier.Verify(access)
		if err == nil {
			return claims, nil
		}
	}

	refresh := cookies.Refresh(c)
	if refresh == "" || g.cfg.Refresher == nil {
		return nil, nil
	}

	pair, err := g.refresh(c.Request().Context(), refresh)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRefreshFailed):
			g.cfg.Cookies.Clear(c)
			metrics.TokenRefreshTotal.WithLabelValues("gate", "failed").Inc()
		case errors.Is(err, domain.ErrMaintenance):
			metrics.TokenRefreshTotal.WithLabelValues("gate", "maintenance").Inc()
		default:
			metrics.TokenRefreshTotal.WithLabelValues("gate", "error").Inc()
			g.cfg.Log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("gate refresh failed")
		}
		return nil, err
	}

	claims, err := g.cfg.Verifier.Verify(pair.AccessToken)
	if err != nil {
		return nil, err
	}
	g.cfg.Cookies.SetSession(c, pair)
	return claims, nil
}

// refresh rotates refreshToken at most once for all concurrent callers.
func (g *Gate) refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	key := domain.HashToken(refreshToken)
	if pair, ok := g.recentPair(key); ok {
		metrics.TokenRefreshTotal.WithLabelValues("gate", "shared").Inc()
		return pair, nil
	}

	v, err, shared := g.group.Do(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		pair, err := g.cfg.Refresher.Refresh(rctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if claims, err := g.cfg.Verifier.Verify(pair.AccessToken); err == nil {
			g.remember(key, pair, claims)
		}
		return pair, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.TokenRefreshTotal.WithLabelValues("gate", "shared").Inc()
	} else {
		metrics.TokenRefreshTotal.WithLabelValues("gate", "rotated").Inc()
	}
	return v.(*domain.TokenPair), nil
}

func (g *Gate) recentPair(key string) (*domain.TokenPair, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.recent[key]
	if !ok || g.cfg.Now().Sub(r.at) > recentRotationTTL {
		return nil, false
	}
	return r.pair, true
}

func (g *Gate) remember(key string, pair *domain.TokenPair, claims *domain.AccessClaims) {
	now := g.cfg.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, r := range g.recent {
		if now.Sub(r.at) > recentRotationTTL {
			delete(g.recent, k)
		}
	}
	g.recent[key] = recentRotation{pair: pair, userID: claims.UserID, family: claims.SessionID, at: now}
}

func (g *Gate) redirect(c echo.Context, decision, location string) error {
	metrics.GateDecisionsTotal.WithLabelValues(decision).Inc()
	g.cfg.Log.Debug().
		Str("path", c.Request().URL.Path).
		Str("decision", decision).
		Str("location", location).
		Msg("gate redirect")
	return c.Redirect(http.StatusFound, location)
}

// unavailable answers a protected navigation whose session could not be
// restored because of a transient fault. The page offers one action: retry.
func (g *Gate) unavailable(c echo.Context, target string) error {
	metrics.GateDecisionsTotal.WithLabelValues("retry").Inc()
	c.Response().Header().Set(echo.HeaderRetryAfter, retryAfter)
	return c.JSON(http.StatusServiceUnavailable, map[string]any{
		"page":    "unavailable",
		"title":   "Temporarily unavailable",
		"message": "We could not restore your session. Please try again.",
		"action": map[string]string{
			"label":  "Try again",
			"method": http.MethodGet,
			"href":   target,
		},
	})
}

func expiredRedirect(target string) string {
	login := domain.LoginRedirect(target)
	if login == domain.LoginPath {
		return domain.ExpiredPath
	}
	return domain.ExpiredPath + login[len(domain.LoginPath):]
}
