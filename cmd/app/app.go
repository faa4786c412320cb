package app

import (
	"context"
	"fmt"
	"log/slog"

	"lorelink/internal/cache"
	"lorelink/internal/config"
	"lorelink/internal/database"
	"lorelink/internal/events"
	"lorelink/internal/repository"
	"lorelink/internal/service"
	"lorelink/internal/storage"
)

type App struct {
	DB       *database.DB
	Repo     *repository.Repository
	Services *service.Service
	Watcher  *repository.PgWatcher

	closers []func() error
}

// New wires the store, the optional Redis/Kafka/MinIO adapters and the services.
// Postgres is required; the other adapters fall back to no-ops when unset or unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{DB: db}
	a.closers = append(a.closers, db.CloseDB)

	watcher, err := repository.NewPgWatcher(cfg.DB.ConnString())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("start change watcher: %w", err)
	}
	a.Watcher = watcher
	a.closers = append(a.closers, watcher.Close)

	deps := service.Deps{Cfg: cfg}

	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("redis unavailable, profile cache disabled", "error", err)
		} else {
			deps.Cache = cache.NewRedisProfileCache(client, cfg.Redis.ProfileTTL)
			a.closers = append(a.closers, client.Close)
			slog.Info("profile cache enabled", "ttl", cfg.Redis.ProfileTTL)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		if err != nil {
			slog.Warn("kafka unavailable, domain events disabled", "error", err)
		} else {
			deps.Events = publisher
			a.closers = append(a.closers, publisher.Close)
			slog.Info("domain events enabled", "brokers", cfg.Kafka.Brokers)
		}
	}

	if cfg.MinIO.Endpoint != "" {
		avatars, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			slog.Warn("minio unavailable, serving static avatar urls", "error", err)
		} else {
			deps.Avatars = avatars
			slog.Info("avatar storage enabled", "bucket", cfg.MinIO.BucketName)
		}
	}

	a.Repo = repository.NewRepository(db.DB)
	deps.Repo = a.Repo
	a.Services = service.NewService(deps)

	return a, nil
}

// Close releases adapters in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}
