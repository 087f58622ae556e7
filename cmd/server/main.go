// @title          Seller Auth API
// @version        1.0
// @description    Magic-link sign-in, token rotation and role-gated access for Seller Center.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/api"
	"github.com/shopdesk/seller-auth/internal/api/cookies"
	"github.com/shopdesk/seller-auth/internal/api/handler"
	"github.com/shopdesk/seller-auth/internal/api/middleware"
	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
	"github.com/shopdesk/seller-auth/internal/core/service"
	mongodb "github.com/shopdesk/seller-auth/internal/infrastructure/db/mongo"
	redisdb "github.com/shopdesk/seller-auth/internal/infrastructure/db/redis"
	"github.com/shopdesk/seller-auth/internal/infrastructure/ids"
	"github.com/shopdesk/seller-auth/internal/infrastructure/notify"
	"github.com/shopdesk/seller-auth/internal/infrastructure/queue"
	"github.com/shopdesk/seller-auth/internal/infrastructure/ws"
	"github.com/shopdesk/seller-auth/internal/pkg/config"
	"github.com/shopdesk/seller-auth/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:    cfg.LogLevel,
		Pretty:   cfg.Development(),
		Service:  "seller-auth",
		Env:      cfg.Env,
		Instance: cfg.NodeID,
	})
	if envErr != nil {
		log.Debug().Msg("no .env file found, relying on process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// 1. Storage.
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		AppName:     cfg.Mongo.AppName,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		ClientName: cfg.Redis.ClientName,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	node, err := ids.NewSnowflake(cfg.NodeID)
	if err != nil {
		return err
	}

	users := mongodb.NewUserRepository(db, node)
	links := mongodb.NewMagicLinkRepository(db)
	refreshTokens := mongodb.NewRefreshTokenRepository(db)

	// 2. Background workers: link delivery and the session-event fan-out.
	var sender ports.Notifier = notify.NewLogSender(log)
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			FromName:    cfg.SMTP.FromName,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
		})
	} else if !cfg.Development() {
		log.Warn().Msg("SMTP_HOST not set, magic links are only logged")
	}
	dispatcher := queue.NewDispatcher(cfg.NotifyWorkers, sender, log)
	dispatcher.Start(ctx)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	sessionEvents := redisdb.NewSessionEvents(rdb, log)
	audit := service.NewAuditLog(mongodb.NewAuditRepository(db), sessionEvents, log)

	// 3. Core services.
	tokens := service.NewTokenIssuer(service.TokenIssuerConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}, users, refreshTokens, audit, log)

	magicLinks := service.NewMagicLinkService(service.MagicLinkConfig{
		TTL:               cfg.MagicLink.TTL,
		CallbackURL:       cfg.PublicURL + "/auth/callback",
		SingleOutstanding: cfg.MagicLink.SingleOutstanding,
	}, links, users, dispatcher, redisdb.NewThrottle(rdb, cfg.RateLimit.PerEmail, cfg.RateLimit.EmailWindow), log)

	authService := service.NewAuthService(
		magicLinks,
		tokens,
		users,
		redisdb.NewMaintenanceFlag(rdb, cfg.Maintenance.Default),
		audit,
		log,
	)

	if err := service.EnsureAdmin(ctx, users, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminName, log); err != nil {
		return err
	}

	// 4. HTTP.
	policy, err := domain.NewAccessPolicy(domain.DefaultRules(), domain.DefaultAuthEntryPaths())
	if err != nil {
		return err
	}

	jar := cookies.Jar{Domain: cfg.Cookie.Domain, Secure: cfg.Cookie.Secure}
	gate := middleware.NewGate(middleware.GateConfig{
		Policy:      policy,
		Verifier:    tokens,
		Refresher:   authService,
		Maintenance: authService,
		Cookies:     jar,
		Log:         log,
	})

	// Session events from every instance reach this instance's sockets and
	// evict ended logins from the gate.
	if err := sessionEvents.Subscribe(ctx, func(event domain.SessionEvent) {
		hub.Deliver(event)
		gate.Forget(event)
	}); err != nil {
		return err
	}

	e := api.NewRouter(api.Dependencies{
		Auth:     authService,
		Audit:    audit,
		Verifier: tokens,
		Gate:     gate,
		Cookies:  jar,
		Sockets:  hub,
		Health: map[string]handler.PingFunc{
			"mongodb": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		RateLimitPerMinute: cfg.RateLimit.PerIPPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Log:                log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
