// Command forecast prints one forecast as JSON for the configured backend.
//
//	forecast -type expense -method ensemble -months 12 -horizon 3
//	forecast -summary
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(envOr("LOG_LEVEL", "warn")).WithComponent(log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	kindFlag := flag.String("type", "expense", "transaction type: income or expense")
	methodFlag := flag.String("method", string(cfg.Method()), "forecast method: "+fmt.Sprint(forecast.Methods()))
	months := flag.Int("months", cfg.ForecastLookbackMonths, "months of history to use")
	horizon := flag.Int("horizon", cfg.ForecastHorizon, "months to forecast")
	summary := flag.Bool("summary", false, "forecast income and expense with the net balance")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if err := run(cfg, logger, *kindFlag, *methodFlag, *months, *horizon, *summary, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "forecast:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger, kindName, methodName string, months, horizon int, summary bool, timeout time.Duration) error {
	method, err := forecast.ParseMethod(methodName)
	if err != nil {
		return err
	}
	if months < config.MinLookbackMonths || months > config.MaxLookbackMonths {
		return fmt.Errorf("months must be between %d and %d", config.MinLookbackMonths, config.MaxLookbackMonths)
	}
	if horizon < config.MinHorizon || horizon > config.MaxHorizon {
		return fmt.Errorf("horizon must be between %d and %d", config.MinHorizon, config.MaxHorizon)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// A one-shot read never publishes refreshes.
	backendConfig.AMQPURL = ""

	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	if result.Cleanup != nil {
		defer cleanupBackend(logger, result.Cleanup)
	}

	forecasts, err := services.NewForecastService(result.Backend, nil, cli.ForecastConfig(cfg), logger)
	if err != nil {
		return err
	}

	var out any
	if summary {
		out, err = forecasts.Summary(ctx, method, months, horizon)
	} else {
		kind, kerr := core.ParseTransactionKind(kindName)
		if kerr != nil {
			return kerr
		}
		out, err = forecasts.Forecast(ctx, services.ForecastRequest{Kind: kind, Method: method, Months: months, Horizon: horizon})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cleanupBackend(logger *log.Logger, cleanup func() error) {
	if err := cleanup(); err != nil {
		logger.Error("Backend cleanup error", log.FieldError, err)
	}
}
