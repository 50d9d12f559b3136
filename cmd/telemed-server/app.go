package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/config"
	"github.com/telemed/telemed/internal/domain/auction"
	"github.com/telemed/telemed/internal/domain/events"
	"github.com/telemed/telemed/internal/domain/meet"
	"github.com/telemed/telemed/internal/domain/triage"
	"github.com/telemed/telemed/internal/platform/apierror"
	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/internal/platform/db"
	"github.com/telemed/telemed/internal/platform/gateway"
	"github.com/telemed/telemed/internal/platform/middleware"
	"github.com/telemed/telemed/internal/platform/retention"
	"github.com/telemed/telemed/internal/platform/webhook"
	"github.com/telemed/telemed/internal/platform/websocket"
	"github.com/telemed/telemed/migrations"
)

const (
	version       = "0.1.0"
	sessionIssuer = "telemed"
	drAIHeader    = "X-Auth"
)

// app holds the wired services shared by the serve and cleanup commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	triage    *triage.Service
	auction   *auction.Service
	events    *events.Service
	forwarder *webhook.Forwarder
	hub       *websocket.Hub
	sweeper   *retention.Sweeper
}

// newApp builds the stores and services. With STORE=postgres it connects,
// applies pending migrations and backs every repository with the pool.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, hub: websocket.NewHub(logger)}

	triageRepo := triage.NewMemoryRepo()
	auctionRepo := auction.NewMemoryRepo()
	eventRepo := events.NewMemoryRepo(events.DefaultMemoryLimit)
	if cfg.UsePostgres() {
		pool, err := db.NewPool(ctx, db.PoolOptions{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Schema:   cfg.DBSchema,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

		n, err := db.NewMigrator(pool, migrations.FS).Up(ctx, cfg.DBSchema)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if n > 0 {
			logger.Info().Int("applied", n).Msg("migrations applied")
		}

		triageRepo = triage.NewRepoPG(pool)
		auctionRepo = auction.NewRepoPG(pool)
		eventRepo = events.NewRepoPG(pool)
	}

	evOpts := []events.Option{
		events.WithLogger(logger),
		events.WithPublisher(a.hub),
		events.WithRepository(eventRepo),
		events.WithDedupWindow(cfg.EventDedupWindow),
	}
	if cfg.TelemedInternalURL != "" {
		a.forwarder = webhook.NewForwarder(
			strings.TrimRight(cfg.TelemedInternalURL, "/")+"/api/events",
			webhook.WithSecret(cfg.EventSecret),
			webhook.WithQueueSize(cfg.EventBuffer),
			webhook.WithLogger(logger),
		)
		evOpts = append(evOpts, events.WithForwarder(a.forwarder))
	}
	a.events = events.NewService(events.NewRing(cfg.EventBuffer), evOpts...)

	a.triage = triage.NewService(triageRepo, triage.NewMetrics(), a.events, triage.WithLogger(logger))

	auOpts := []auction.Option{
		auction.WithLogger(logger),
		auction.WithTTL(cfg.BidTTL),
		auction.WithPublisher(a.hub),
	}
	if cfg.TelemedInternalURL != "" && cfg.InternalToken != "" {
		auOpts = append(auOpts, auction.WithNotifier(
			auction.NewHTTPNotifier(cfg.TelemedInternalURL, cfg.InternalHeader, cfg.InternalToken),
		))
	} else {
		logger.Warn().Msg("TELEMED_INTERNAL_URL or INTERNAL_TOKEN not set; accepted bids are not forwarded")
	}
	a.auction = auction.NewService(auctionRepo, auOpts...)

	a.sweeper = retention.NewSweeper(cfg.SweepInterval, logger, a.sweepTasks()...)
	return a, nil
}

func (a *app) sweepTasks() []retention.Task {
	return []retention.Task{
		{Name: "expire_bids", Run: a.auction.Expire},
		{Name: "purge_triages", Run: func(ctx context.Context) (int, error) {
			return a.triage.Purge(ctx, time.Now().Add(-a.cfg.TriageRetention))
		}},
		{Name: "purge_events", Run: func(ctx context.Context) (int, error) {
			return a.events.Purge(ctx, time.Now().Add(-a.cfg.EventRetention))
		}},
	}
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// router builds the echo instance with every route mounted.
func (a *app) router() (*echo.Echo, error) {
	cfg := a.cfg
	logger := a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", drAIHeader, cfg.InternalHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	revocations := auth.NewRevocations()
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		SigningKey:     []byte(cfg.JWTSecret),
		InternalToken:  cfg.InternalToken,
		InternalHeader: cfg.InternalHeader,
		AllowAnonymous: cfg.IsDev(),
		Revocations:    revocations,
		Skipper:        auth.AuthSkipper,
	}))

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}

	// MDA gateway sits outside the rate-limited API group so websocket
	// upgrades and long uploads pass straight through.
	if err := gateway.RegisterMDA(e, gateway.MDAConfig{
		Enabled: cfg.MDAEnabled,
		Target:  cfg.MDAServiceURL,
		Logger:  logger,
	}); err != nil {
		return nil, err
	}

	api := e.Group("/api")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.ETag(middleware.DefaultETagConfig()))

	drAIGuard := auth.StaticToken(drAIHeader, cfg.DrAIToken)

	auth.NewSessionHandler(auth.NewIssuer([]byte(cfg.JWTSecret), sessionIssuer, cfg.SessionTTL), revocations).RegisterRoutes(api)
	triage.NewHandler(a.triage).RegisterRoutes(api, drAIGuard)
	events.NewHandler(a.events).RegisterRoutes(api, drAIGuard)
	auction.NewHandler(a.auction).RegisterRoutes(api)
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(api)
	meet.NewHandler(auth.NewMeetSigner(cfg.MeetTokenSecret, cfg.MeetEarly, cfg.MeetLate)).RegisterRoutes(api)
	gateway.NewHealthProxy(gateway.HealthProxyConfig{
		Upstream: cfg.InternalHealthURL,
		Header:   cfg.InternalHeader,
		Token:    cfg.InternalToken,
		CacheTTL: 15 * time.Second,
		Logger:   logger,
	}).RegisterRoutes(api)

	return e, nil
}
