// Package server is the web shell: page routes behind the session redirect
// policy, JSON view models, mutations proxied through the controllers and the
// realtime inbox socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replied/internal/api"
	"replied/internal/auth"
	"replied/internal/cache"
	"replied/internal/config"
	"replied/internal/controller"
	"replied/internal/database"
	"replied/internal/featureflags"
	"replied/internal/media"
	"replied/internal/middleware"
	"replied/internal/models"
	"replied/internal/notifications"
	"replied/internal/observability"
	"replied/internal/realtime"
	"replied/internal/repository"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Backend is every backend call the shell's controllers make.
type Backend interface {
	controller.ProfileSource
	controller.Sender
	controller.Reactor
	controller.SettingsAPI
	controller.FriendsAPI
	controller.InboxAPI
	controller.CollectionsAPI
}

// Deps are the already-initialized collaborators of a Server.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Backend  Backend
	Profiles repository.ProfileRepository
	Uploader controller.AvatarUploader
	GoTrue   *auth.GoTrue
	Store    *auth.Store
	// Realtime opens inbox subscriptions; nil disables the relay.
	Realtime notifications.SubscribeFunc
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
	backend        Backend
	profiles       repository.ProfileRepository
	uploader       controller.AvatarUploader
	gotrue         *auth.GoTrue
	store          *auth.Store
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	relay          *notifications.Relay
	featureFlags   *featureflags.Manager
	reactionLocks  *controller.KeyedMutex
	searches       *controller.Debouncers
	usernameChecks *controller.Debouncers
	log            *observability.ComponentLogger
}

// NewServer connects the database and Redis and builds every client from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient, err := cache.InitRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	store, err := auth.NewStore(redisClient, []byte(cfg.SessionKey), cfg.SessionTTL())
	if err != nil {
		return nil, err
	}

	rt, err := realtime.NewClient(cfg.RealtimeURL, cfg.AuthAnonKey)
	if err != nil {
		return nil, err
	}

	return NewServerWithDeps(cfg, Deps{
		DB:       db,
		Redis:    redisClient,
		Backend:  api.NewClient(cfg.BackendURL, cfg.HTTPTimeout()),
		Profiles: repository.NewProfileRepository(db),
		Uploader: media.NewStorage(cfg.StorageURL, cfg.StorageBucket, cfg.AuthAnonKey, cfg.HTTPTimeout()),
		GoTrue:   auth.NewGoTrue(cfg.AuthURL, cfg.AuthAnonKey, cfg.HTTPTimeout()),
		Store:    store,
		Realtime: notifications.RealtimeSubscriber(rt),
	})
}

// NewServerWithDeps creates a Server from already-initialized dependencies.
// Use this in tests or when a bootstrap layer owns the connections.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Redis == nil || deps.Store == nil {
		return nil, errors.New("server requires redis and a session store")
	}
	if deps.Backend == nil {
		return nil, errors.New("server requires a backend client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("replied-web"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		backend:        deps.Backend,
		profiles:       deps.Profiles,
		uploader:       deps.Uploader,
		gotrue:         deps.GoTrue,
		store:          deps.Store,
		notifier:       notifications.NewNotifier(deps.Redis),
		hub:            notifications.NewHub(deps.Redis),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		reactionLocks:  controller.NewKeyedMutex(),
		searches:       controller.NewDebouncers(controller.SearchDelay),
		usernameChecks: controller.NewDebouncers(controller.CheckDelay),
		log:            observability.For("server"),
	}

	if deps.Realtime != nil {
		s.relay = notifications.NewRelay(deps.Realtime, notifications.Deliver(s.hub, s.notifier))
		s.relay.Attach(s.hub)
	}

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Tracing after the request id so spans carry it
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}
	app.Use(middleware.MetricsMiddleware())

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep their headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = s.config.PublicURL
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))

	// Browser session id cookie for every route below
	app.Use(s.SessionCookie())
}

// App builds the Fiber application once.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	app := fiber.New(fiber.Config{
		AppName:      "Replied",
		BodyLimit:    media.MaxUploadBytes + 64<<10,
		ErrorHandler: s.errorHandler,
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	s.log.Error(c.UserContext(), "unhandled error", err, map[string]any{"path": c.Path()})
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// Start wires the inbox hub to Redis and serves until the app is shut down.
func (s *Server) Start() error {
	app := s.App()

	if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
		s.log.Error(s.shutdownCtx, "failed to start inbox hub wiring", err, nil)
	}

	s.log.Info(s.shutdownCtx, "server starting", map[string]any{"port": s.config.Port})
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the hub wiring
	s.shutdownFn()

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.log.Error(ctx, "error shutting down HTTP server", err, nil)
		}
	}

	if s.relay != nil {
		s.relay.Close()
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		s.log.Error(ctx, "error shutting down inbox hub", err, nil)
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.log.Error(ctx, "error closing database", err, nil)
		}
	}
	if err := s.redis.Close(); err != nil {
		s.log.Error(ctx, "error closing redis", err, nil)
	}

	s.log.Info(ctx, "server shutdown complete", nil)
	return nil
}
