package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	grpcapp "subtrack/internal/app/grpc"
	"subtrack/internal/cache/redis"
	"subtrack/internal/config"
	"subtrack/internal/lib/jwt"
	"subtrack/internal/lib/password"
	"subtrack/internal/lib/sl"
	"subtrack/internal/metrics"
	"subtrack/internal/services/auth"
	"subtrack/internal/storage/mongodb"
	"subtrack/internal/storage/sqlite"
)

type App struct {
	GRPCSrv    *grpcapp.App
	MetricsSrv *metrics.Server

	log     *slog.Logger
	closers []func(ctx context.Context) error
}

type accountStore interface {
	auth.AccountSaver
	auth.AccountProvider
}

func New(ctx context.Context, log *slog.Logger, cfg *config.Config) *App {
	a := &App{log: log}

	store, err := a.openStorage(ctx, cfg)
	if err != nil {
		panic(err)
	}

	tokens, err := jwt.NewIssuer(cfg.Tokens.Secret, cfg.Tokens.RefreshPepper)
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := []auth.Option{auth.WithMetrics(m)}
	if cache := a.openCache(ctx, cfg); cache != nil {
		opts = append(opts, auth.WithCache(cache))
	}

	authService := auth.New(
		log,
		store,
		store,
		password.New(cfg.Password.Cost),
		tokens,
		auth.Config{
			AccessTTL:    cfg.Tokens.AccessTTL,
			RefreshTTL:   cfg.Tokens.RefreshTTL,
			StoreTimeout: cfg.Storage.Timeout,
			CacheTimeout: cfg.Redis.Timeout,
		},
		opts...,
	)

	a.GRPCSrv = grpcapp.New(log, authService, cfg.Grpc.Port, cfg.Grpc.Timeout)
	if cfg.Metrics.Address != "" {
		a.MetricsSrv = metrics.NewServer(log, cfg.Metrics.Address, reg)
	}

	return a
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (accountStore, error) {
	const op = "app.openStorage"

	switch cfg.Storage.Driver {
	case config.StorageMongo:
		storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, storage.Close)
		return storage, nil
	case config.StorageSQLite:
		storage, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, func(context.Context) error { return storage.Close() })
		return storage, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}

// openCache returns nil when no cache is configured. An unreachable cache is
// still returned; its calls degrade until the backend comes back.
func (a *App) openCache(ctx context.Context, cfg *config.Config) *redis.Cache {
	const op = "app.openCache"

	log := a.log.With(slog.String("op", op))

	if cfg.Redis.Addr == "" {
		log.Info("session cache disabled")
		return nil
	}

	cache := redis.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
	if err := cache.Ping(ctx); err != nil {
		log.Warn("session cache unreachable, continuing without it until it recovers",
			slog.String("addr", cfg.Redis.Addr), sl.Err(err))
	}

	a.closers = append(a.closers, func(context.Context) error { return cache.Close() })

	return cache
}

// Stop shuts the servers down, then releases storage and cache.
func (a *App) Stop(ctx context.Context) {
	const op = "app.Stop"

	a.GRPCSrv.Stop()
	if a.MetricsSrv != nil {
		a.MetricsSrv.Stop(ctx)
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("failed to close resource", slog.String("op", op), sl.Err(err))
		}
	}
}
