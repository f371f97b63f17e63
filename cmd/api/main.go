package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/barter-backend/api/controllers"
	"github.com/angelmondragon/barter-backend/api/routes"
	"github.com/angelmondragon/barter-backend/internal/friends"
	"github.com/angelmondragon/barter-backend/internal/items"
	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/internal/locks"
	"github.com/angelmondragon/barter-backend/internal/trades"
	"github.com/angelmondragon/barter-backend/internal/users"
	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/instance"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/metrics"
	"github.com/angelmondragon/barter-backend/pkg/migrate"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/redis"
	"github.com/angelmondragon/barter-backend/pkg/security"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	readiness := []controllers.ReadinessCheck{{Name: "database", Pinger: dbClient}}

	// Redis is optional: without it idempotency is skipped and only row locks
	// serialise accepts.
	var (
		idempotency redis.IdempotencyStore
		itemLocker  locks.ItemLocker
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		redisLocker, err := locks.NewRedisItemLocker(redisClient, cfg.Trades.ItemLockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create item locker", err)
			os.Exit(1)
		}
		idempotency = redisClient
		itemLocker = redisLocker
		readiness = append(readiness, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency and item locks disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	coordinator := metrics.NewCoordinatorMetrics(reg)

	events := outbox.NewRepository(dbClient.DB())
	publisher := outbox.NewService(events, logg)

	usersSvc, err := users.NewService(users.NewRepository(dbClient.DB()), security.NewHasher(cfg.Password), logg)
	exitOnErr(logg, "users service", err)

	itemsSvc, err := items.NewService(dbClient, items.NewRepository(dbClient.DB()), publisher, logg, coordinator)
	exitOnErr(logg, "items service", err)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	exitOnErr(logg, "ledger service", err)

	tradesSvc, err := trades.NewService(trades.Deps{
		Tx:      dbClient,
		Repo:    trades.NewRepository(dbClient.DB()),
		Ledger:  ledgerSvc,
		Owners:  itemsSvc,
		Outbox:  publisher,
		Locker:  itemLocker,
		Events:  events,
		Logger:  logg,
		Metrics: coordinator,
	})
	exitOnErr(logg, "trades service", err)

	friendsSvc, err := friends.NewService(dbClient, friends.NewRepository(dbClient.DB()), usersSvc, publisher, logg, coordinator)
	exitOnErr(logg, "friends service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Gatherer:    reg,
			HTTPMetrics: metrics.NewHTTPMetrics(reg),
			Idempotency: idempotency,
			Readiness:   readiness,
			Users:       usersSvc,
			Items:       itemsSvc,
			Trades:      tradesSvc,
			Friends:     friendsSvc,
			Ledger:      ledgerSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server stopped")
}

func exitOnErr(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
