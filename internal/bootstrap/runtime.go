// Package bootstrap connects the backing services and assembles the API
// server from them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shutter/internal/cache"
	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/events"
	"shutter/internal/imaging"
	"shutter/internal/middleware"
	"shutter/internal/observability"
	"shutter/internal/realtime"
	"shutter/internal/repository"
	"shutter/internal/server"
	"shutter/internal/service"
	"shutter/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options override what InitRuntime would otherwise connect to.
type Options struct {
	// DB skips connecting to Postgres and applying the schema.
	DB *gorm.DB
	// Store skips building the configured object store.
	Store storage.ObjectStore
	// Redis skips dialing REDIS_URL.
	Redis *redis.Client
}

// Runtime owns the connections behind a Server.
type Runtime struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Store     storage.ObjectStore
	Publisher events.Publisher
	Hub       *realtime.Hub

	ownsDB        bool
	ownsRedis     bool
	traceShutdown func(context.Context) error
}

// InitRuntime connects every backing service and verifies the image
// pipeline. Any failure aborts startup.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	// Fail before touching the network if the configured codec is missing.
	if err := imaging.CheckCapabilities(cfg.ImageOutputFormat); err != nil {
		return nil, fmt.Errorf("image pipeline check failed: %w", err)
	}

	rt := &Runtime{Config: cfg, Hub: realtime.NewHub()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.traceShutdown, err = observability.InitTracing(observability.TracingConfig{
		ServiceName:    "shutter-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if opts.DB != nil {
		rt.DB = opts.DB
	} else {
		if rt.DB, err = database.Connect(cfg); err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.ownsDB = true
		if err = database.ApplySchema(ctx, rt.DB, cfg); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	if opts.Redis != nil {
		rt.Redis = opts.Redis
	} else {
		// nil when unreachable; rate limiting fails open and URLs go uncached.
		rt.Redis = cache.NewClient(ctx, cfg.RedisURL)
		rt.ownsRedis = rt.Redis != nil
	}

	if opts.Store != nil {
		rt.Store = opts.Store
	} else {
		if rt.Store, err = storage.New(ctx, cfg); err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		if err = rt.Store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", cfg.StorageBucket, err)
		}
	}

	pub, err := events.New(cfg, rt.Redis)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if _, ok := pub.(*events.RedisPublisher); ok {
		// The hub subscribes to the channel once the server starts.
		rt.Publisher = pub
	} else {
		rt.Publisher = events.Multi{pub, rt.Hub}
	}

	middleware.Logger.Info("runtime initialized",
		slog.String("env", cfg.Env),
		slog.String("storage", rt.Store.Driver()),
		slog.String("events", cfg.EventsDriver),
		slog.Bool("redis", rt.Redis != nil),
	)
	return rt, nil
}

// NewServer builds the repositories and services and hands them to the
// HTTP server.
func (rt *Runtime) NewServer() (*server.Server, error) {
	cfg := rt.Config

	posts := repository.NewPostRepository(rt.DB)
	profiles := service.NewProfileService(repository.NewProfileRepository(rt.DB))
	processor := imaging.NewProcessor(imaging.Options{
		MaxDimension: cfg.ImageMaxDimension,
		Quality:      cfg.ImageJPEGQuality,
		Format:       cfg.ImageOutputFormat,
	})

	maxDimension := cfg.ImageMaxDimension
	if maxDimension <= 0 {
		maxDimension = 2048
	}
	outputFormat := cfg.ImageOutputFormat
	if outputFormat == "" {
		outputFormat = imaging.FormatJPEG
	}

	return server.NewServerWithDeps(cfg, server.Deps{
		DB:        rt.DB,
		Redis:     rt.Redis,
		Verifier:  middleware.NewIdentityVerifier(cfg),
		Feed:      service.NewFeedService(posts, profiles, cfg.FeedDefaultLimit, cfg.FeedMaxLimit),
		Likes:     service.NewLikeService(posts, profiles, rt.Publisher),
		Shares:    service.NewShareService(posts, rt.Publisher),
		Images:    service.NewImageURLService(posts, rt.Store, cache.NewURLCache(rt.Redis), cfg.SignedURLTTL()),
		Profiles:  profiles,
		Hub:       rt.Hub,
		Publisher: rt.Publisher,
		Uploads: service.NewUploadService(posts, profiles, rt.Store, processor, rt.Publisher, service.UploadOptions{
			MaxBytes: int64(cfg.ImageMaxUploadSizeMB) << 20,
			Timeout:  cfg.ImageProcessTimeout(),
		}),
		Capabilities: server.UploadCapabilities{
			OutputFormat: outputFormat,
			MaxDimension: maxDimension,
			MaxUploadMB:  cfg.ImageMaxUploadSizeMB,
			Accepts:      []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			Storage:      rt.Store.Driver(),
		},
	})
}

// Close releases the connections InitRuntime opened. The server closes the
// publisher itself.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.ownsRedis && rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.ownsDB {
		if err := database.Close(rt.DB); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.traceShutdown != nil {
		if err := rt.traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
