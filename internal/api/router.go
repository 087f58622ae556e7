package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/shopdesk/seller-auth/docs"
	"github.com/shopdesk/seller-auth/internal/api/cookies"
	"github.com/shopdesk/seller-auth/internal/api/handler"
	"github.com/shopdesk/seller-auth/internal/api/middleware"
	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// Dependencies is everything the HTTP layer needs from the rest of the process.
type Dependencies struct {
	Auth     ports.AuthService
	Audit    ports.AuditLog
	Verifier ports.TokenVerifier
	// Gate guards the page routes; the caller owns it so session events can
	// reach its rotation cache.
	Gate     *middleware.Gate
	Cookies  cookies.Jar
	Sockets  handler.SocketServer
	Health   map[string]handler.PingFunc
	// RateLimitPerMinute bounds link requests and verifications per client IP.
	RateLimitPerMinute int
	// TrustedProxies are the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
	Log            zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	ipExtractor, err := middleware.IPExtractor(deps.TrustedProxies)
	if err != nil {
		deps.Log.Error().Err(err).Msg("ignoring trusted proxies, using the socket peer address")
		ipExtractor = echo.ExtractIPDirect()
	}
	e.IPExtractor = ipExtractor

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddleware("auth_http"))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Cookies)
	adminHandler := handler.NewAdminHandler(deps.Auth)
	eventHandler := handler.NewEventHandler(deps.Audit)
	pageHandler := handler.NewPageHandler()
	eventsHandler := handler.NewSessionEventsHandler(deps.Sockets, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.Health)

	requireAuth := middleware.Auth(deps.Verifier)
	optionalAuth := middleware.OptionalAuth(deps.Verifier)
	limiter := middleware.NewRateLimiter(deps.RateLimitPerMinute).Middleware()
	gate := deps.Gate.Middleware()

	// --- Auth API ---
	e.POST("/auth/request-magic-link", authHandler.RequestMagicLink, limiter)
	e.GET("/auth/callback", authHandler.Callback)
	e.POST("/auth/verify", authHandler.Verify, limiter)
	e.POST("/auth/refresh-token", authHandler.RefreshToken)
	e.POST("/auth/logout", authHandler.Logout, optionalAuth)
	e.GET("/auth/signout", authHandler.SignOut, optionalAuth)
	e.GET("/auth/session", authHandler.Session)
	e.GET("/auth/session/events", eventsHandler.Stream, requireAuth)

	// --- Admin API ---
	admin := e.Group("/api/admin", requireAuth, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/maintenance", adminHandler.Maintenance)
	admin.PUT("/maintenance", adminHandler.SetMaintenance)
	admin.POST("/users", adminHandler.Invite)
	admin.PATCH("/users/:id/role", adminHandler.ChangeRole)
	admin.GET("/users/:id/events", eventHandler.History)

	// --- Pages (behind the edge gate) ---
	e.GET(domain.LoginPath, pageHandler.Login, gate)
	e.GET(domain.VerifyPath, pageHandler.Verify, gate)
	e.GET(domain.ExpiredPath, pageHandler.Expired, gate)
	e.GET(domain.UnauthorizedPath, pageHandler.Unauthorized, gate)
	e.GET(domain.MaintenancePath, pageHandler.Maintenance, gate)
	e.GET("/admin/*", pageHandler.Area, gate)
	e.GET("/manager/*", pageHandler.Area, gate)
	e.GET("/client/*", pageHandler.Area, gate)

	// --- Health probes, metrics and docs (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			// Query strings are left out: magic-link tokens travel there.
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("http request")
			return nil
		},
	})
}
