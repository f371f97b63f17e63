package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/barter-backend/internal/locks"
	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/instance"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/migrate"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/registry"
	"github.com/angelmondragon/barter-backend/pkg/pubsub"
	"github.com/angelmondragon/barter-backend/pkg/redis"
)

const (
	serviceName   = "outbox-publisher"
	leaderLockTTL = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"topic":    cfg.PubSub.TradeEventsTopic,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher stopped cleanly")
}

// run owns every connection the publisher opens and closes them on return.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, ps.Close()) }()

	// Without Redis every replica publishes; SKIP LOCKED keeps them off
	// each other's rows.
	var leader locks.Lock
	if cfg.Redis.Enabled() {
		rc, dialErr := redis.New(ctx, cfg.Redis, logg)
		if dialErr != nil {
			return fmt.Errorf("redis: %w", dialErr)
		}
		defer func() { err = multierr.Append(err, rc.Close()) }()
		lock, lockErr := locks.NewRedisLock(rc, rc.LockKey("outbox", "publisher"), leaderLockTTL)
		if lockErr != nil {
			return fmt.Errorf("publisher lock: %w", lockErr)
		}
		leader = lock
	}

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     ps,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   events,
		Leader:     leader,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "outbox publisher running")
	return svc.Run(ctx)
}
