// Package main is the entry point for the GhostAtlas enhancement worker.
// It drains pending encounters, rewriting each story with the text model
// and rendering an illustration with the image model.
package main

import (
	"context"
	"errors"
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

	"github.com/ghostatlas/ghostatlas/internal/config"
	"github.com/ghostatlas/ghostatlas/internal/db"
	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/enhance"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
	"github.com/ghostatlas/ghostatlas/internal/upload"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	metricsPort := flag.Int("metrics-port", 9091, "port for the Prometheus metrics endpoint")
	flag.Parse()

	if *help {
		fmt.Println("GhostAtlas Enhancement Worker")
		fmt.Println()
		fmt.Println("Usage: enhancer [options]")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	generator, err := enhance.NewGenAIGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiTextModel, cfg.GeminiImageModel)
	if err != nil {
		logger.Error("generator init failed", "error", err)
		os.Exit(1)
	}

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

	metrics := enhance.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration failed", "error", err)
		os.Exit(1)
	}
	go serveMetrics(logger, *metricsPort)

	worker := enhance.NewWorker(
		encounter.NewPostgresRepository(pool, logger),
		generator,
		uploadService,
		logger,
		enhance.WithMetrics(metrics),
		enhance.WithPollInterval(time.Duration(cfg.EnhancePollSeconds)*time.Second),
	)

	logger.Info("enhancement worker starting",
		"generator", generator.Name(),
		"poll_seconds", cfg.EnhancePollSeconds,
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("enhancement worker stopped")
}

func serveMetrics(logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		logger.Error("metrics server error", "error", err)
	}
}
