package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maplecart/inventory-backend/api/controllers"
	"github.com/maplecart/inventory-backend/api/routes"
	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/internal/channelmap"
	"github.com/maplecart/inventory-backend/internal/ledger"
	"github.com/maplecart/inventory-backend/internal/query"
	"github.com/maplecart/inventory-backend/pkg/config"
	"github.com/maplecart/inventory-backend/pkg/db"
	"github.com/maplecart/inventory-backend/pkg/logger"
	"github.com/maplecart/inventory-backend/pkg/metrics"
	"github.com/maplecart/inventory-backend/pkg/migrate"
	"github.com/maplecart/inventory-backend/pkg/outbox"
	"github.com/maplecart/inventory-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "inventory-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "inventory-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	allocMetrics := metrics.NewAllocationMetrics(prometheus.DefaultRegisterer)

	counterRepo := allocation.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())

	mappingService, err := channelmap.NewService(channelmap.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create channel mapping service", err)
		os.Exit(1)
	}

	eventService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	allocationService, err := allocation.NewService(
		dbClient,
		counterRepo,
		ledgerRepo,
		mappingService,
		eventService,
		allocMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create allocation service", err)
		os.Exit(1)
	}

	queryService, err := query.NewService(counterRepo, redisClient, cfg.Query.ListCacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create query service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting inventory api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Allocation:  allocationService,
			Query:       queryService,
			ChannelMaps: mappingService,
			HealthChecks: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "inventory api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "inventory api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "inventory api server shut down gracefully")
	}
}
