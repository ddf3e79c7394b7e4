package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger)
	result, err := factory.CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", backendConfig.Type)
		os.Exit(1)
	}

	forecasts, err := services.NewForecastService(result.Backend, result.Backend, cli.ForecastConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize forecast service", log.FieldError, err)
		os.Exit(1)
	}

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(forecasts.Cache())
	cacheManager.StartCleanup(5 * time.Minute)

	checks := map[string]apphttp.ReadinessCheck{}
	if p, ok := result.Backend.(backend.Pinger); ok {
		checks["backend"] = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, forecasts, result.Backend, apphttp.Options{
		Logger: logger,
		Checks: checks,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting bilancio server",
		"port", cfg.Port,
		"backend", backendConfig.Type,
		log.FieldForecast, cfg.Method(),
		log.FieldMonths, cfg.ForecastLookbackMonths,
		log.FieldHorizon, cfg.ForecastHorizon)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
