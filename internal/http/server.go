package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
)

// ForecastProvider is the forecasting surface the API serves.
type ForecastProvider interface {
	Series(ctx context.Context, kind core.TransactionKind, months int) ([]forecast.DataPoint, error)
	Forecast(ctx context.Context, req services.ForecastRequest) (forecast.ForecastResult, error)
	Summary(ctx context.Context, method forecast.Method, months, horizon int) (services.Summary, error)
	Invalidate(kind core.TransactionKind) int
	Config() services.ForecastConfig
	Cache() *cache.LRUCache[forecast.ForecastResult]
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options configures optional server behaviour.
type Options struct {
	Logger    *log.Logger
	Checks    map[string]ReadinessCheck
	RateLimit ratelimit.Config
	Now       func() time.Time
}

type appMetrics struct {
	uptime       time.Time
	transactions int64
	forecasts    int64
	failures     int64
}

// Server is the HTTP API server.
type Server struct {
	http.Server
	forecasts ForecastProvider
	writer    sheets.TransactionWriter
	checks    map[string]ReadinessCheck
	now       func() time.Time

	logger  *log.Logger
	events  *log.StructuredLogger
	metrics appMetrics

	rateLimiter     *ratelimit.Limiter
	securityHeaders *security.HeadersMiddleware
	detector        *security.Detector
	traceMiddleware *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, forecasts ForecastProvider, writer sheets.TransactionWriter, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	detector := security.NewDetector()
	s := &Server{
		forecasts:       forecasts,
		writer:          writer,
		checks:          opts.Checks,
		now:             now,
		logger:          logger,
		events:          log.NewStructuredLogger(logger),
		metrics:         appMetrics{uptime: time.Now()},
		rateLimiter:     ratelimit.NewLimiter(opts.RateLimit),
		securityHeaders: security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		detector:        detector,
		traceMiddleware: trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/forecast/summary", s.handleSummary)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)

	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, http.MethodPost)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.securityHeaders.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
