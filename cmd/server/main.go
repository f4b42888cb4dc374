// Command server runs the Shutter photo feed API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shutter/internal/bootstrap"
	"shutter/internal/config"
	"shutter/internal/middleware"
)

// @title Shutter API
// @version 1.0
// @description Photo sharing feed: uploads, likes, shares and signed image URLs.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the identity provider session token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := rt.NewServer()
	if err != nil {
		_ = rt.Close(context.Background())
		log.Fatalf("Failed to create server: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		middleware.Logger.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			middleware.Logger.Error("server stopped", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := errors.Join(srv.Shutdown(shutdownCtx), rt.Close(shutdownCtx)); err != nil {
		middleware.Logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
