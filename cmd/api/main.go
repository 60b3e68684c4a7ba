package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/offers-backend/api/controllers"
	"github.com/angelmondragon/offers-backend/api/routes"
	"github.com/angelmondragon/offers-backend/internal/configstore"
	"github.com/angelmondragon/offers-backend/internal/lock"
	"github.com/angelmondragon/offers-backend/internal/offers"
	"github.com/angelmondragon/offers-backend/internal/publish"
	"github.com/angelmondragon/offers-backend/internal/retry"
	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/contentstore"
	"github.com/angelmondragon/offers-backend/pkg/couponledger"
	"github.com/angelmondragon/offers-backend/pkg/db"
	"github.com/angelmondragon/offers-backend/pkg/edgegateway"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
	"github.com/angelmondragon/offers-backend/pkg/instance"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/metrics"
	"github.com/angelmondragon/offers-backend/pkg/migrate"
	"github.com/angelmondragon/offers-backend/pkg/pubsub"
	"github.com/angelmondragon/offers-backend/pkg/redis"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "offers-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "offers-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, redis.Subsystem, err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()
	cacheNotifier, err := pubsub.NewCacheNotifier(psClient)
	requireResource(ctx, logg, "content cache notifier", err)

	timeout := restclient.WithTimeout(cfg.Services.RequestTimeout)
	ledgerClient, err := couponledger.NewClient(cfg.Services.CouponLedgerURL, cfg.Services.CouponLedgerAPIKey, timeout)
	requireResource(ctx, logg, couponledger.Subsystem, err)
	contentClient, err := contentstore.NewClient(cfg.Services.ContentStoreURL, cfg.Services.ContentStoreToken, timeout)
	requireResource(ctx, logg, contentstore.Subsystem, err)
	featureClient, err := featureconfig.NewClient(cfg.Services.FeatureConfigURL, cfg.Services.FeatureConfigAPIKey, timeout)
	requireResource(ctx, logg, featureconfig.Subsystem, err)
	edgeClient, err := edgegateway.NewClient(cfg.Services.EdgeGatewayURL, cfg.Services.EdgeGatewayAPIKey, timeout)
	requireResource(ctx, logg, edgegateway.Subsystem, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	publishMetrics := metrics.NewPublishMetrics(registry)

	locker, err := lock.NewRedisLocker(redisClient, cfg.Lock.TTL)
	requireResource(ctx, logg, "config lock", err)
	store, err := configstore.NewStore(configstore.StoreParams{
		Locker:  locker,
		Service: featureClient,
		Metrics: publishMetrics,
		Logger:  logg,
	})
	requireResource(ctx, logg, "config store", err)

	offerRepo := offers.NewRepository(dbClient.DB())
	publishService, err := publish.NewService(publish.ServiceParams{
		Offers:       offerRepo,
		Campaigns:    offers.NewCampaignRepository(dbClient.DB()),
		Tracker:      offers.NewTracker(offerRepo, dbClient),
		Ledger:       ledgerClient,
		Content:      contentClient,
		Config:       store,
		Edge:         edgeClient,
		Cache:        cacheNotifier,
		Retry:        retry.NewRunner(logg),
		Profiles:     retry.ProfilesFromConfig(cfg.Retry),
		Metrics:      publishMetrics,
		Logger:       logg,
		Concurrency:  cfg.Publish.Concurrency,
		DefaultActor: cfg.Publish.DefaultActor,
	})
	requireResource(ctx, logg, "publish service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, registry, map[string]controllers.Pinger{
			"database":      dbClient,
			redis.Subsystem: redisClient,
			"pubsub":        psClient,
		}, publishService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting offers api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "offers api shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
