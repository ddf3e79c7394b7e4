package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

type seriesResponse struct {
	Type   core.TransactionKind `json:"type"`
	Months int                  `json:"months"`
	Data   []forecast.DataPoint `json:"data"`
}

type forecastResponse struct {
	Type    core.TransactionKind    `json:"type"`
	Method  forecast.Method         `json:"method"`
	Months  int                     `json:"months"`
	Horizon int                     `json:"horizon"`
	Result  forecast.ForecastResult `json:"result"`
}

type summaryResponse struct {
	Method  forecast.Method         `json:"method"`
	Months  int                     `json:"months"`
	Horizon int                     `json:"horizon"`
	Income  forecast.ForecastResult `json:"income"`
	Expense forecast.ForecastResult `json:"expense"`
	Net     []services.NetPoint     `json:"net"`
}

type transactionResponse struct {
	Ref    string               `json:"ref"`
	Type   core.TransactionKind `json:"type"`
	Date   string               `json:"date"`
	Amount string               `json:"amount"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs every readiness check with a shared timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			s.logger.WarnContext(ctx, "Readiness check failed", "check", name, log.FieldError, err)
			continue
		}
		checks[name] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Payload(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	write := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	write("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	write("http_request_duration_avg_us", "gauge", "Average request duration in microseconds", traceMetrics.AverageResponseTime)
	write("transactions_created_total", "counter", "Total number of transactions created", atomic.LoadInt64(&s.metrics.transactions))
	write("forecasts_served_total", "counter", "Total number of forecasts served", atomic.LoadInt64(&s.metrics.forecasts))
	write("forecast_failures_total", "counter", "Total number of failed forecast requests", atomic.LoadInt64(&s.metrics.failures))
	write("forecast_cache_entries", "gauge", "Current forecast cache entries", s.forecasts.Cache().Size())
	write("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	write("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	write("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	write("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.metrics.uptime).Seconds()))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := ParseKind(query)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	months, err := ParseMonths(query, s.forecasts.Config().LookbackMonths)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	data, err := s.forecasts.Series(r.Context(), kind, months)
	if err != nil {
		s.serverError(w, r, "Failed to load series", err, log.OpList)
		return
	}

	NewJSONResponse().Payload(seriesResponse{Type: kind, Months: months, Data: data}).Write(w)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	params, err := ParseForecastParams(r.URL.Query(), s.forecasts.Config(), true)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	result, err := s.forecasts.Forecast(r.Context(), params.Request())
	if err != nil {
		s.serverError(w, r, "Failed to compute forecast", err, log.OpForecast)
		return
	}
	atomic.AddInt64(&s.metrics.forecasts, 1)

	NewJSONResponse().Payload(forecastResponse{
		Type:    params.Kind,
		Method:  params.Method,
		Months:  params.Months,
		Horizon: params.Horizon,
		Result:  result,
	}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseForecastParams(r.URL.Query(), s.forecasts.Config(), false)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	sum, err := s.forecasts.Summary(r.Context(), params.Method, params.Months, params.Horizon)
	if err != nil {
		s.serverError(w, r, "Failed to compute forecast summary", err, log.OpSummary)
		return
	}
	atomic.AddInt64(&s.metrics.forecasts, 1)

	NewJSONResponse().Payload(summaryResponse{
		Method:  params.Method,
		Months:  params.Months,
		Horizon: params.Horizon,
		Income:  sum.Income,
		Expense: sum.Expense,
		Net:     sum.Net,
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	tx, err := ParseTransaction(parser, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ref, err := s.writer.Append(r.Context(), tx)
	if err != nil {
		if isValidationError(err) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		s.serverError(w, r, "Failed to save transaction", err, log.OpCreate)
		return
	}

	dropped := s.forecasts.Invalidate(tx.Kind)
	atomic.AddInt64(&s.metrics.transactions, 1)
	s.events.LogTransactionCreated(r.Context(), string(tx.Kind), tx.Date.String(), tx.Description, tx.Amount.Cents, tx.Primary, ref)
	s.logger.DebugContext(r.Context(), "Forecast cache invalidated", log.FieldKind, tx.Kind, "entries", dropped)

	NewJSONResponse().
		Status(http.StatusCreated).
		Payload(transactionResponse{
			Ref:    ref,
			Type:   tx.Kind,
			Date:   tx.Date.String(),
			Amount: tx.Amount.FormatEuros(),
		}).
		Write(w)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error, op string) {
	atomic.AddInt64(&s.metrics.failures, 1)
	// The client is gone; nothing can be written.
	if r.Context().Err() != nil {
		return
	}
	s.events.LogError(r.Context(), msg, err, log.ComponentHTTP, op, nil)
	InternalServerError("internal error").Write(w)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidDay,
		core.ErrInvalidMonth,
		core.ErrInvalidAmount,
		core.ErrInvalidKind,
		core.ErrEmptyDescription,
		core.ErrEmptyPrimary,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
