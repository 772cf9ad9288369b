package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kasku/internal/amqp"
	"kasku/internal/cache"
	"kasku/internal/charts"
	"kasku/internal/config"
	"kasku/internal/core"
	apphttp "kasku/internal/http"
	applog "kasku/internal/log"
	"kasku/internal/services"
	"kasku/internal/storage"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	logger := applog.New(applog.ComponentApp, applog.Config{Level: slog.LevelInfo})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var (
		repo *storage.Repository
		err  error
	)
	switch cfg.DataBackend {
	case "postgres":
		repo, err = storage.NewPostgresRepository(cfg.PostgresDSN)
	default:
		repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	}
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Initialized storage backend", "backend", cfg.DataBackend)

	var audit *amqp.Client
	if cfg.AMQPURL != "" {
		audit, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer audit.Close()
		logger.Info("Connected audit stream", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP not configured, chart audit stream disabled")
	}

	engine := charts.NewEngine(repo.DB(), repo.Dialect(), charts.Config{
		StrictFields: cfg.StrictFields,
		RawRowLimit:  cfg.RawRowLimit,
	})

	specCache := cache.NewLRU[core.ChartSpec](cfg.SpecCacheSize, cfg.SpecCacheTTL)

	chartSvc := services.NewChartService(repo, engine, specCache, audit,
		logger.WithComponent(applog.ComponentCharts))

	srv := apphttp.NewServer(cfg, chartSvc, repo, logger.WithComponent(applog.ComponentHTTP))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting kasku server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := cache.Janitor(gctx, time.Minute, specCache)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Shutdown signal received")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
