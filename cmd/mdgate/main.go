package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"mdgate/internal/api"
	"mdgate/internal/cache"
	"mdgate/internal/config"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/monitoring"
	"mdgate/internal/provider"
	"mdgate/internal/provider/finnhub"
	"mdgate/internal/provider/polygon"
	"mdgate/internal/provider/tradier"
	"mdgate/internal/ratelimit"
	"mdgate/internal/router"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Secrets normally arrive through the environment; a .env file is a
	// development convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger = logger.WithField("app", cfg.App.Name)
	logger.WithField("env", cfg.App.Env).Info("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Distributed limiter state is optional: without Redis each instance
	// still enforces its own per-vendor limits.
	var redisClient redis.UniversalClient
	var shared *ratelimit.RedisBucket
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.WithError(err).Warn("redis unreachable, distributed rate limiting disabled")
			redisClient.Close()
			redisClient = nil
		} else {
			shared = ratelimit.NewRedisBucket(redisClient, cfg.RateLimit.Vendors)
		}
	}

	metrics := monitoring.New(prometheus.DefaultRegisterer)

	local := ratelimit.NewLocalBucket(cfg.RateLimit.Vendors)
	gate := ratelimit.NewGate(local, shared)
	gate.Metrics = metrics

	mem := cache.NewMemory(cfg.Cache.MaxSize)
	instrumented := monitoring.InstrumentCache(mem, metrics)

	providers := buildProviders(cfg, instrumented, gate, logger)
	for vendor := range providers {
		logger.WithField("vendor", vendor).Info("provider registered")
	}

	rt := router.New(providers, cfg.Router.Policies, cfg.Router.Options(), logger, metrics)
	rt.Start(ctx)

	server := api.NewServer(cfg, rt, instrumented, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown incomplete")
	}

	cancel()
	rt.Close()
	mem.Close()
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("stopped")
}

// buildProviders registers every vendor that has an API key. The shared
// cache and limiter gate are passed into each client so admission control
// and caching stay uniform across vendors.
func buildProviders(cfg *config.Config, mem cache.Cache, gate ratelimit.Limiter, logger *logging.Logger) map[market.VendorID]provider.Provider {
	providers := make(map[market.VendorID]provider.Provider)
	if cfg.Providers.Polygon.APIKey != "" {
		providers[polygon.VendorID] = polygon.New(cfg.Providers.Polygon, mem, gate, logger)
	}
	if cfg.Providers.Finnhub.APIKey != "" {
		providers[finnhub.VendorID] = finnhub.New(cfg.Providers.Finnhub, mem, gate, logger)
	}
	if cfg.Providers.Tradier.APIKey != "" {
		providers[tradier.VendorID] = tradier.New(cfg.Providers.Tradier, mem, gate, logger)
	}
	return providers
}
