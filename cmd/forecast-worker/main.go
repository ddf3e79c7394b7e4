package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/forecast"
	"bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting forecast-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the forecast worker")
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	forecasts, err := services.NewForecastService(sqliteRepo, sqliteRepo, cli.ForecastConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize forecast service", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(forecasts.Cache())
	cacheManager.StartCleanup(5 * time.Minute)

	methods := []forecast.Method{cfg.Method()}
	forecastWorker := worker.NewForecastWorker(forecasts, methods)
	reconciler := services.NewReconcileProcessor(forecasts, services.ReconcileProcessorConfig{
		Interval: cfg.ReconcileInterval,
		// StartupCheck already reconciles once.
		RunOnStart: false,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Reconcile processor stop error", log.FieldError, err)
		}
		cacheManager.Stop()
	})

	// Snapshot anything missed while the worker was down.
	logger.Info("Performing startup forecast check...")
	if err := forecastWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup forecast check", log.FieldError, err)
	}

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", log.FieldError, err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeForecastRefresh(ctx, forecastWorker.HandleRefreshMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	logger.Info("Forecast worker running",
		"queue", cfg.AMQPQueue,
		"reconcile_interval", cfg.ReconcileInterval,
		log.FieldForecast, cfg.Method())

	cli.WaitForShutdown(ctx, done)
}
