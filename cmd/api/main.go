package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"lorelink/cmd/app"
	"lorelink/internal/config"
	handlers "lorelink/internal/handler"
	"lorelink/internal/live"
	"lorelink/internal/middleware"
)

func main() {
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Server.LogLevel)})).
		With("service", "lorelink-api")
	slog.SetDefault(logger)

	if cfg.JWTSecretKey == "" {
		logger.Error("JWT_SECRET_KEY is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()

	go a.Watcher.Run(ctx)

	hub := live.NewHub(a.Watcher)
	go hub.Run(ctx)

	h := handlers.NewHandlers(a.Services, a.DB, cfg)

	r := mux.NewRouter()
	h.Routes(r, middleware.AuthMiddleware(a.Services.Auth))
	r.Handle("/ws", live.ServeWS(ctx, hub, a.Services.Auth, cfg.Server.CORSOrigins)).Methods(http.MethodGet)

	handlerChain := middleware.Chain(
		r,
		middleware.RequestIDMiddleware,
		middleware.RecoverMiddleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(cfg.Server.CORSOrigins),
		middleware.TimeoutMiddleware(cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handlerChain,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr, "database", cfg.DB.DbNAME)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func logLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
