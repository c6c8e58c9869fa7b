// Package main is the entry point for the GhostAtlas API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ghostatlas/ghostatlas/internal/api"
	"github.com/ghostatlas/ghostatlas/internal/auth"
	"github.com/ghostatlas/ghostatlas/internal/cache"
	"github.com/ghostatlas/ghostatlas/internal/config"
	"github.com/ghostatlas/ghostatlas/internal/db"
	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/health"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
	"github.com/ghostatlas/ghostatlas/internal/rating"
	"github.com/ghostatlas/ghostatlas/internal/upload"
	"github.com/ghostatlas/ghostatlas/internal/verification"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("GhostAtlas API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis is optional; without it rate limiting and the response cache
	// fall back to in-process stores.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration failed", "error", err)
		os.Exit(1)
	}

	var rateLimitStore middleware.RateLimitStore
	var cacheStore cache.Store
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
		cacheStore = cache.NewRedisStore(redisClient)
	} else {
		memLimits := middleware.NewInMemoryRateLimitStore()
		memCache := cache.NewInMemoryStore()
		rateLimitStore = memLimits
		cacheStore = memCache
		go cleanupLoop(ctx, memLimits.Cleanup, memCache.Cleanup)
	}
	listCache := cache.New(cacheStore, cache.DefaultListTTL, logger)

	var signer api.URLSigner
	if cfg.StorageBucketName != "" {
		uploadService, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.StorageBucketName,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			Endpoint:        cfg.StorageEndpoint,
			PublicBaseURL:   cfg.StoragePublicBaseURL,
			MaxSizeMB:       cfg.StorageMaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("upload service init failed", "error", err)
			os.Exit(1)
		}
		signer = uploadService
	} else {
		logger.Warn("object storage not configured; submissions return no upload URLs")
	}

	encounterRepo := encounter.NewPostgresRepository(pool, logger)
	ratingRepo := rating.NewPostgresRepository(pool)
	verificationRepo := verification.NewPostgresRepository(pool)

	healthConfig := api.HealthHandlersConfig{DBChecker: health.NewDBChecker(pool)}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	mux := api.NewRouter(api.RouterConfig{
		Encounters: api.NewEncounterHandlers(encounterRepo, verificationRepo, signer).
			WithListCache(listCache),
		Ratings: api.NewRatingHandlers(encounterRepo, ratingRepo),
		Verifications: api.NewVerificationHandlers(
			encounterRepo, verificationRepo, cfg.VerificationRadiusMeters),
		Admin: api.NewAdminHandlers(encounterRepo, auth.NewJWTService(cfg.AdminJWTSecret)).
			WithCache(listCache),
		Health:         api.NewHealthHandlers(healthConfig),
		MetricsHandler: promhttp.Handler(),
		RateLimitStore: rateLimitStore,
	})

	// Middleware chain, outermost first: RequestID -> CORS -> HTTPMetrics -> Logging.
	handler := middleware.RequestID(
		middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.Logging(logger)(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// cleanupLoop periodically evicts expired entries from the in-process
// rate-limit and cache stores.
func cleanupLoop(ctx context.Context, fns ...func()) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, fn := range fns {
				fn()
			}
		}
	}
}
