// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "shutter/docs" // swagger docs
	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/events"
	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/realtime"
	"shutter/internal/service"

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

// Deps are the collaborators a Server is built from. Every handler reaches
// remote systems only through these.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Verifier  *middleware.IdentityVerifier
	Feed      *service.FeedService
	Likes     *service.LikeService
	Uploads   *service.UploadService
	Shares    *service.ShareService
	Images    *service.ImageURLService
	Profiles  *service.ProfileService
	Hub       *realtime.Hub
	Publisher events.Publisher
	// Capabilities is reported by GET /api/upload.
	Capabilities UploadCapabilities
}

// UploadCapabilities describes what the upload pipeline accepts.
type UploadCapabilities struct {
	OutputFormat string   `json:"outputFormat"`
	MaxDimension int      `json:"maxDimension"`
	MaxUploadMB  int      `json:"maxUploadMb"`
	Accepts      []string `json:"accepts"`
	Storage      string   `json:"storage"`
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
	verifier       *middleware.IdentityVerifier
	feed           *service.FeedService
	likes          *service.LikeService
	uploads        *service.UploadService
	shares         *service.ShareService
	images         *service.ImageURLService
	profiles       *service.ProfileService
	hub            *realtime.Hub
	publisher      events.Publisher
	capabilities   UploadCapabilities
}

// NewServerWithDeps creates a Server from already-initialized dependencies.
// The bootstrap layer owns connecting to the database, Redis, the object
// store and the event broker.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Feed == nil || deps.Likes == nil || deps.Uploads == nil ||
		deps.Shares == nil || deps.Images == nil || deps.Profiles == nil {
		return nil, errors.New("all services are required")
	}
	if deps.Verifier == nil {
		deps.Verifier = middleware.NewIdentityVerifier(cfg)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("shutter-api"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		verifier:       deps.Verifier,
		feed:           deps.Feed,
		likes:          deps.Likes,
		uploads:        deps.Uploads,
		shares:         deps.Shares,
		images:         deps.Images,
		profiles:       deps.Profiles,
		hub:            deps.Hub,
		publisher:      deps.Publisher,
		capabilities:   deps.Capabilities,
	}, nil
}

// NewApp creates the Fiber app with the shared error handler and a body
// limit that leaves room for multipart framing around the largest upload.
func (s *Server) NewApp() *fiber.App {
	bodyLimit := int(s.uploads.MaxBytes()) + 1<<20
	return fiber.New(fiber.Config{
		AppName:   "Shutter API",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				if fe.Code == fiber.StatusRequestEntityTooLarge {
					return models.RespondWithError(c, fe.Code, models.NewValidationError("File too large"))
				}
				return models.RespondWithError(c, fe.Code, errors.New(fe.Message))
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	maxRequests := s.config.RateLimitMax
	if maxRequests <= 0 {
		maxRequests = 10
	}
	app.Use("/api", limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: s.config.RateLimitWindow(),
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || unmetered(c.Path())
		},
		KeyGenerator: middleware.ClientIP,
		LimitReached: func(c *fiber.Ctx) error {
			middleware.RateLimitRejections.WithLabelValues("api").Inc()
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError())
		},
	}))
}

// unmetered reports whether path bypasses the per-IP API limiter. A feed
// page resolves one image per item, and relay connections are long-lived.
func unmetered(path string) bool {
	if strings.HasPrefix(path, "/api/ws/") {
		return true
	}
	rest, ok := strings.CutPrefix(path, "/api/posts/")
	return ok && strings.HasSuffix(strings.TrimSuffix(rest, "/"), "/image")
}

// uploadLimiter limits uploads across instances. Production refuses uploads
// when Redis cannot count them; other environments let them through.
func (s *Server) uploadLimiter() fiber.Handler {
	l := middleware.NewLimiter(s.redis, "upload", s.config.RateLimitMax, time.Minute)
	if s.config.IsProduction() {
		l = l.WithPolicy(middleware.FailClosed)
	}
	return l.Handler()
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Get("/:id/image", s.GetPostImage)

	likes := api.Group("/likes", s.AuthRequired())
	likes.Post("/", s.AddLike)
	likes.Delete("/", s.RemoveLike)

	// Uploads are also limited across instances through Redis.
	api.Get("/upload", s.UploadStatus)
	api.Post("/upload",
		s.AuthRequired(),
		s.uploadLimiter(),
		s.Upload,
	)

	api.Post("/share", s.Share)

	profile := api.Group("/profile", s.AuthRequired())
	profile.Post("/sync", s.SyncProfile)
	profile.Get("/me", s.GetMyProfile)

	api.Get("/ws/feed", s.FeedUpgrade, s.FeedWebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis reachability. Redis is optional:
// without it rate limiting fails open and signed URLs are not cached.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
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

// AuthRequired rejects requests without a valid identity-provider session
// before the handler runs.
func (s *Server) AuthRequired() fiber.Handler {
	return middleware.SessionRequired(s.verifier)
}

// optionalSubject returns the caller's subject when a valid session is
// present and records it for logging.
func (s *Server) optionalSubject(c *fiber.Ctx) string {
	subject, ok := middleware.OptionalSubject(c, s.verifier)
	if !ok {
		return ""
	}
	middleware.SetSubject(c, subject)
	return subject
}

// Start wires the feed relay and serves HTTP until the app is shut down.
func (s *Server) Start() error {
	app := s.NewApp()
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if rp, ok := s.publisher.(*events.RedisPublisher); ok && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, rp); err != nil && !errors.Is(err, context.Canceled) {
				middleware.Logger.Error("feed relay wiring stopped", slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops the HTTP server, the relay and the event publisher. The
// database and Redis connections belong to the bootstrap runtime.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, err)
	}

	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
