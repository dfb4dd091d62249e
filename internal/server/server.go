// Package server contains the HTTP handlers for the gallery API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "gallery/docs" // swagger docs
	"gallery/internal/bootstrap"
	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/events"
	"gallery/internal/featureflags"
	"gallery/internal/gallery"
	"gallery/internal/generation"
	"gallery/internal/interaction"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/notifications"
	"gallery/internal/repository"
	"gallery/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Generator produces images from prompts.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Asset, error)
	Providers() []generation.Descriptor
}

// Deps are the already-initialized collaborators of a Server.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.BlobStore
	// Bus defaults to events.Nop.
	Bus events.Bus
	// Generator defaults to a dispatcher over the built-in catalog.
	Generator Generator
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	imageRepo      repository.ImageRepository
	likeRepo       repository.LikeRepository
	commentRepo    repository.CommentRepository
	gallery        *gallery.Service
	generator      Generator
	bus            events.Bus
	featureFlags   *featureflags.Manager
	hub            *notifications.Hub

	storesMu  sync.Mutex
	stores    map[string]*storeEntry
	lastSweep time.Time
	now       func() time.Time
}

type storeEntry struct {
	store    *interaction.Store
	lastUsed time.Time
}

// A member's store is dropped after this long without a request.
const (
	storeIdleTTL       = 30 * time.Minute
	storeSweepInterval = time.Minute
)

// NewServer connects every external system and creates a server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{
		SeedDemo: cfg.SeedDemo && !cfg.IsProduction(),
	})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, Deps{DB: rt.DB, Redis: rt.Redis, Blobs: rt.Blobs, Bus: rt.Bus})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the connections.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server requires a database")
	}
	if deps.Blobs == nil {
		return nil, errors.New("server requires a blob store")
	}
	middleware.InitMiddleware(cfg)

	flags := featureflags.NewManager(cfg.FeatureFlags)
	bus := deps.Bus
	if bus == nil {
		bus = events.Nop{}
	}
	gen := deps.Generator
	if gen == nil {
		gen = generation.NewDispatcher(generation.Config{
			APIKey:        cfg.RapidAPIKey,
			Timeout:       time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
			MaxAssetBytes: int64(cfg.GenerationMaxAssetMB) * 1024 * 1024,
		}, generation.WithProviderFilter(flags.ProviderEnabled))
	}

	imageRepo := repository.NewImageRepository(deps.DB)
	server := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("gallery-api"),
		imageRepo:      imageRepo,
		likeRepo:       repository.NewLikeRepository(deps.DB),
		commentRepo:    repository.NewCommentRepository(deps.DB),
		gallery:        gallery.NewService(imageRepo, deps.Blobs, bus, cfg),
		generator:      gen,
		bus:            bus,
		featureFlags:   flags,
		hub:            notifications.NewHub(),
		stores:         make(map[string]*storeEntry),
		now:            time.Now,
	}
	return server, nil
}

// store returns the interaction store for a member, creating it on first use.
// Anonymous readers share the "" store. Stores idle past storeIdleTTL are
// swept on the way in.
func (s *Server) store(userID string) *interaction.Store {
	s.storesMu.Lock()
	defer s.storesMu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= storeSweepInterval {
		s.sweepStores(now)
	}
	e, ok := s.stores[userID]
	if !ok {
		e = &storeEntry{store: interaction.New(s.likeRepo, s.commentRepo,
			interaction.WithPublisher(s.bus),
			interaction.WithLogger(middleware.Logger),
		)}
		s.stores[userID] = e
	}
	e.lastUsed = now
	return e.store
}

// sweepStores drops idle stores. Caller holds storesMu.
func (s *Server) sweepStores(now time.Time) {
	s.lastSweep = now
	dropped := 0
	for id, e := range s.stores {
		if now.Sub(e.lastUsed) > storeIdleTTL {
			delete(s.stores, id)
			dropped++
		}
	}
	if dropped > 0 {
		middleware.Logger.Debug("idle interaction stores dropped",
			slog.Int("dropped", dropped), slog.Int("remaining", len(s.stores)))
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS sits ahead of the limiter so 429s still carry the allow headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.allowedOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "X-Provider-ID, " + middleware.TraceIDHeader,
		AllowCredentials: true,
		MaxAge:           int((24 * time.Hour).Seconds()),
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        globalRequestsPerWindow,
		Expiration: globalRateWindow,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: "RATE_LIMITED", Message: "Too many requests, please try again later."})
		},
	}))
}

// Per-IP ceiling applied to every non-preflight request.
const (
	globalRequestsPerWindow = 100
	globalRateWindow        = time.Minute
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

func (s *Server) allowedOrigins() string {
	if s.config.AllowedOrigins != "" {
		return s.config.AllowedOrigins
	}
	return strings.Join(defaultOrigins, ",")
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	images := api.Group("/images")
	images.Get("/", middleware.OptionalAuth, s.ListImages)
	images.Post("/", middleware.AuthRequired, s.UploadImage)
	// Specific /:id/:resource routes before the generic /:id route
	images.Get("/:id/comments", middleware.OptionalAuth, s.GetComments)
	images.Post("/:id/comments", middleware.AuthRequired, s.CreateComment)
	images.Get("/:id/like", middleware.OptionalAuth, s.GetLike)
	images.Post("/:id/like", middleware.AuthRequired, s.ToggleLike)
	images.Get("/:id", middleware.OptionalAuth, s.GetImage)

	api.Delete("/comments/:id", middleware.AuthRequired, s.DeleteComment)

	api.Get("/providers", s.ListProviders)
	api.Post("/generate", middleware.AuthRequired,
		middleware.RateLimit(s.redis, s.generationRule()), s.Generate)
	api.Post("/generate/save", middleware.AuthRequired, s.SaveGenerated)

	api.Get("/feature-flags", middleware.OptionalAuth, s.GetFeatureFlags)

	api.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/ws/events", middleware.OptionalAuth, s.WebSocketUpgrade, s.EventStreamHandler())
}

// generationRule budgets upstream generator calls per member per minute.
func (s *Server) generationRule() middleware.RateRule {
	limit := s.config.GenerationRateLimit
	if limit <= 0 {
		limit = 10
	}
	return middleware.RateRule{Name: "generate", Limit: limit, Window: time.Minute}
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	maxUpload := s.config.ImageMaxUploadSizeMB
	if maxUpload <= 0 {
		maxUpload = gallery.DefaultImageMaxUploadSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName: "Gallery API",
		// Multipart overhead on top of the largest accepted file.
		BodyLimit: (maxUpload + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, &models.AppError{Message: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// StartEventSubscriber forwards bus events to the websocket hub, folds them
// into every member's store and keeps the feed cache honest about counters.
func (s *Server) StartEventSubscriber(ctx context.Context) error {
	return s.bus.Subscribe(ctx, func(e events.Event) {
		s.handleEvent(ctx, e)
	})
}

func (s *Server) handleEvent(ctx context.Context, e events.Event) {
	if err := s.hub.Publish(ctx, e); err != nil {
		middleware.Logger.Warn("event stream broadcast failed", slog.String("error", err.Error()))
	}

	switch e.Type {
	case events.TypeImageLiked, events.TypeImageUnliked, events.TypeCommentAdded, events.TypeCommentDeleted:
	default:
		return
	}

	s.storesMu.Lock()
	stores := make([]*interaction.Store, 0, len(s.stores))
	for _, e := range s.stores {
		stores = append(stores, e.store)
	}
	s.storesMu.Unlock()
	for _, st := range stores {
		st.ApplyRemote(e)
	}

	if e.ImageID == "" {
		cache.Invalidate(ctx, cache.FeedRecentKey(s.gallery.FeedLimit()), cache.FeedAllKey)
		return
	}
	owner := ""
	if img, err := s.imageRepo.GetByID(ctx, e.ImageID); err == nil {
		owner = img.UserID
	}
	cache.InvalidateFeeds(ctx, s.gallery.FeedLimit(), owner)
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()
	if err := s.StartEventSubscriber(s.shutdownCtx); err != nil {
		middleware.Logger.Warn("event subscriber not started", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	s.hub.Shutdown()

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.bus.Close(); err != nil {
		middleware.Logger.Error("error closing event bus", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// The feed degrades to direct reads without Redis, so it only reports.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
