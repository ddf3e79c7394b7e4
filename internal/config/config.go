package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/forecast"
)

// Bounds shared by configuration and the HTTP query parser.
const (
	MinLookbackMonths = 1
	MaxLookbackMonths = 120
	MinHorizon        = 1
	MaxHorizon        = 36
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string
	DataDir     string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Forecasting
	ForecastMethod          string
	ForecastLookbackMonths  int
	ForecastHorizon         int
	ForecastEnsembleWeights string
	ForecastCacheTTL        time.Duration
	ForecastCacheSize       int

	// Worker
	ReconcileInterval time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		DataDir:     getEnv("DATA_DIR", "data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "forecast_refresh"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		ForecastMethod:          getEnv("FORECAST_METHOD", string(forecast.DefaultMethod)),
		ForecastLookbackMonths:  getEnvInt("FORECAST_LOOKBACK_MONTHS", forecast.DefaultLookbackMonths),
		ForecastHorizon:         getEnvInt("FORECAST_HORIZON", 3),
		ForecastEnsembleWeights: getEnv("FORECAST_ENSEMBLE_WEIGHTS", ""),
		ForecastCacheTTL:        getEnvDuration("FORECAST_CACHE_TTL", 5*time.Minute),
		ForecastCacheSize:       getEnvInt("FORECAST_CACHE_SIZE", 128),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Forecasting
	if _, err := forecast.ParseMethod(c.ForecastMethod); err != nil {
		errors = append(errors, fmt.Sprintf("invalid forecast method '%s': must be one of %v", c.ForecastMethod, forecast.Methods()))
	}
	if c.ForecastLookbackMonths < MinLookbackMonths || c.ForecastLookbackMonths > MaxLookbackMonths {
		errors = append(errors, fmt.Sprintf("invalid forecast lookback %d: must be between %d and %d months", c.ForecastLookbackMonths, MinLookbackMonths, MaxLookbackMonths))
	}
	if c.ForecastHorizon < MinHorizon || c.ForecastHorizon > MaxHorizon {
		errors = append(errors, fmt.Sprintf("invalid forecast horizon %d: must be between %d and %d months", c.ForecastHorizon, MinHorizon, MaxHorizon))
	}
	if c.ForecastEnsembleWeights != "" {
		if _, err := forecast.ParseWeights(c.ForecastEnsembleWeights); err != nil {
			errors = append(errors, fmt.Sprintf("invalid forecast ensemble weights '%s': %v", c.ForecastEnsembleWeights, err))
		}
	}
	if c.ForecastCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid forecast cache TTL %v: must not be negative", c.ForecastCacheTTL))
	}
	if c.ForecastCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid forecast cache size %d: must be at least 1", c.ForecastCacheSize))
	}

	if c.ReconcileInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 second", c.ReconcileInterval))
	} else if c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at most 24 hours", c.ReconcileInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Method returns the configured default forecast method. Call after Validate.
func (c *Config) Method() forecast.Method {
	m, err := forecast.ParseMethod(c.ForecastMethod)
	if err != nil {
		return forecast.DefaultMethod
	}
	return m
}

// EnsembleWeights returns the configured ensemble weights, or nil when the
// built-in weights should be used. Call after Validate.
func (c *Config) EnsembleWeights() forecast.Weights {
	if c.ForecastEnsembleWeights == "" {
		return nil
	}
	w, err := forecast.ParseWeights(c.ForecastEnsembleWeights)
	if err != nil {
		return nil
	}
	return w
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
